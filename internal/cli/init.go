package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/tabdiff/internal/workspace"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a tabdiff workspace",
	Long: `Create the .tabdiff directory in the current (or --workspace)
directory, write its configuration, and add the archive pattern to
.gitignore so summaries stay version-controlled while archives do not.`,
	Run: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing workspace configuration")
}

func runInit(cmd *cobra.Command, args []string) {
	root := workspaceFlag
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			exitError("%v", err)
		}
		root = cwd
	}

	ws, err := workspace.Create(root, initForce)
	if err != nil {
		fail(err, false)
	}
	fmt.Printf("Initialized tabdiff workspace at %s\n", ws.Path)
}
