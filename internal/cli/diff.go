package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/tabdiff/internal/detect"
)

var (
	diffOutput string
	diffJSON   bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <snapshot1> <snapshot2>",
	Short: "Compare two snapshots",
	Long: `Reconstruct both snapshots' tables and report the changes that turn
the first into the second. The report is persisted under
.tabdiff/diffs/ (or at --output).`,
	Args: cobra.ExactArgs(2),
	Run:  runDiff,
}

func init() {
	diffCmd.Flags().StringVar(&diffOutput, "output", "", "Write the report to this path instead of .tabdiff/diffs/")
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "Emit the change report as JSON on stdout")
}

func runDiff(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	c := initContext(diffJSON)

	base, err := c.Store.Resolve(args[0], "")
	if err != nil {
		fail(err, diffJSON)
	}
	compare, err := c.Store.Resolve(args[1], "")
	if err != nil {
		fail(err, diffJSON)
	}

	baseTable, err := c.baselineTable(ctx, base)
	if err != nil {
		fail(err, diffJSON)
	}
	compareTable, err := c.baselineTable(ctx, compare)
	if err != nil {
		fail(err, diffJSON)
	}

	cs, err := detect.Changes(baseTable, compareTable)
	if err != nil {
		fail(err, diffJSON)
	}

	reportPath := diffOutput
	if reportPath == "" {
		reportPath = c.Workspace.DiffPath(base.Name, compare.Name)
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		fail(err, diffJSON)
	}
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		fail(err, diffJSON)
	}
	if err := os.WriteFile(reportPath, append(data, '\n'), 0o644); err != nil {
		fail(err, diffJSON)
	}

	if diffJSON {
		printJSON(cs)
		return
	}
	fmt.Printf("Comparing snapshots: %s -> %s\n\n", base.Name, compare.Name)
	printChangeSet(cs, false)
	fmt.Printf("\nReport saved to %s\n", reportPath)
}
