package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/tabdiff/internal/detect"
	"github.com/kilupskalvis/tabdiff/internal/store"
)

var (
	statusCompareTo string
	statusJSON      bool
	statusQuiet     bool
)

var statusCmd = &cobra.Command{
	Use:   "status <input>",
	Short: "Compare the current file against a snapshot",
	Long: `Scan the file as it stands now and report schema, row, and cell
changes against a baseline snapshot (the latest snapshot of this
source unless --compare-to names one).`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusCompareTo, "compare-to", "", "Snapshot to compare against (default: latest for this source)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit the change report as JSON")
	statusCmd.Flags().BoolVar(&statusQuiet, "quiet", false, "Counts only")
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	c := initContext(statusJSON)

	current, src, err := c.currentTable(ctx, args[0], c.Settings.BatchSize)
	if err != nil {
		fail(err, statusJSON)
	}

	ref := statusCompareTo
	if ref == "" {
		ref = store.Latest
	}
	sum, err := c.Store.Resolve(ref, src.Path())
	if err != nil {
		fail(err, statusJSON)
	}

	baseline, err := c.baselineTable(ctx, sum)
	if err != nil {
		fail(err, statusJSON)
	}

	cs, err := detect.Changes(baseline, current)
	if err != nil {
		fail(err, statusJSON)
	}

	if statusJSON {
		printJSON(cs)
		return
	}
	fmt.Printf("Comparing %s against snapshot %q\n\n", args[0], sum.Name)
	printChangeSet(cs, statusQuiet)
}
