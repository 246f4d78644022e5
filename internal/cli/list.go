package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all snapshots",
	Run:   runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Emit the snapshot list as JSON")
}

func runList(cmd *cobra.Command, args []string) {
	c := initContext(listJSON)

	summaries, err := c.Store.List()
	if err != nil {
		fail(err, listJSON)
	}

	if listJSON {
		printJSON(summaries)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("No snapshots yet")
		return
	}

	cyan := color.New(color.FgCyan)
	for _, sum := range summaries {
		cyan.Printf("%s", sum.Name)
		fmt.Printf("  seq=%d rows=%d cols=%d", sum.SequenceNumber, sum.RowCount, sum.ColumnCount)
		if sum.ParentSnapshot != "" {
			fmt.Printf(" parent=%s", sum.ParentSnapshot)
		}
		if !sum.HasFullData {
			fmt.Printf(" (hash-only)")
		}
		fmt.Printf("  %s\n", sum.Created.Format("2006-01-02 15:04"))
	}
}
