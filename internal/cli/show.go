package cli

import (
	"github.com/spf13/cobra"
)

var (
	showDetailed bool
	showJSON     bool
)

var showCmd = &cobra.Command{
	Use:   "show <snapshot>",
	Short: "Show snapshot information",
	Args:  cobra.ExactArgs(1),
	Run:   runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showDetailed, "detailed", false, "Include per-column hashes and delta details")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Emit the summary as JSON")
}

func runShow(cmd *cobra.Command, args []string) {
	c := initContext(showJSON)

	sum, err := c.Store.Resolve(args[0], "")
	if err != nil {
		fail(err, showJSON)
	}

	if showJSON {
		printJSON(sum)
		return
	}
	printSummary(sum, showDetailed)
}
