package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/tabdiff/internal/detect"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/rollback"
	"github.com/kilupskalvis/tabdiff/internal/source"
	"github.com/kilupskalvis/tabdiff/internal/store"
)

var (
	rollbackTo     string
	rollbackToDate string
	rollbackDryRun bool
	rollbackForce  bool
	rollbackBackup bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <input>",
	Short: "Restore a file to a previous snapshot state",
	Long: `Compute the changes between a snapshot and the file as it stands
now, then apply the reverse operations to the file. A backup copy is
written next to the file unless --backup=false. SQL sources are
read-only and cannot be rolled back.`,
	Args: cobra.ExactArgs(1),
	Run:  runRollback,
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackTo, "to", "", "Snapshot to roll back to")
	rollbackCmd.Flags().StringVar(&rollbackToDate, "to-date", "", "Roll back to the latest snapshot at or before this date")
	rollbackCmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false, "Show what would change without writing")
	rollbackCmd.Flags().BoolVar(&rollbackForce, "force", false, "Skip confirmation and overwrite an existing backup")
	rollbackCmd.Flags().BoolVar(&rollbackBackup, "backup", true, "Copy the file aside before rewriting")
	rollbackCmd.MarkFlagsMutuallyExclusive("to", "to-date")
}

func runRollback(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	c := initContext(false)

	src, err := source.Open(args[0], c.Settings.BatchSize)
	if err != nil {
		fail(err, false)
	}

	target, err := resolveRollbackTarget(c, src.Path())
	if err != nil {
		fail(err, false)
	}

	baseline, err := c.baselineTable(ctx, target)
	if err != nil {
		fail(err, false)
	}

	current, _, err := c.currentTable(ctx, args[0], c.Settings.BatchSize)
	if err != nil {
		fail(err, false)
	}

	cs, err := detect.Changes(baseline, current)
	if err != nil {
		fail(err, false)
	}
	if cs.Empty() {
		fmt.Printf("%s already matches snapshot %q\n", args[0], target.Name)
		return
	}

	fmt.Printf("Rolling back %s to snapshot %q\n", args[0], target.Name)
	fmt.Printf("  %d operation(s) to apply\n", len(cs.RollbackOps))

	if !rollbackDryRun && !rollbackForce {
		if !confirm("Apply rollback?") {
			fmt.Println("Aborted")
			return
		}
	}

	report, err := rollback.Apply(ctx, args[0], baseline, cs.RollbackOps, rollback.Options{
		DryRun: rollbackDryRun,
		Backup: rollbackBackup,
		Force:  rollbackForce,
	})
	if err != nil {
		fail(err, false)
	}

	if report.DryRun {
		fmt.Printf("Dry run: %d rows -> %d rows, %d columns -> %d columns\n",
			report.RowsBefore, report.RowsAfter, report.ColsBefore, report.ColsAfter)
		return
	}
	fmt.Printf("Rolled back %s (%d rows -> %d rows)\n", args[0], report.RowsBefore, report.RowsAfter)
	if report.BackupPath != "" {
		fmt.Printf("Backup written to %s\n", report.BackupPath)
	}
}

func resolveRollbackTarget(c *cmdContext, sourcePath string) (*model.Summary, error) {
	switch {
	case rollbackTo != "":
		return c.Store.Resolve(rollbackTo, sourcePath)
	case rollbackToDate != "":
		return c.resolveByDate(rollbackToDate, sourcePath)
	default:
		return c.Store.Resolve(store.Latest, sourcePath)
	}
}
