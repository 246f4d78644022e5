package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/tabdiff/internal/progress"
	"github.com/kilupskalvis/tabdiff/internal/snapshot"
)

var (
	snapshotName      string
	snapshotBatchSize int
	snapshotHashOnly  bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <input>",
	Short: "Create a snapshot of a tabular source",
	Long: `Scan a CSV/TSV/JSON/JSONL/Parquet file or an SQL query source and
record a named snapshot. By default the full table is stored in the
archive, enabling cell-level diffs and rollback; --hash-only keeps
fingerprints only.`,
	Args: cobra.ExactArgs(1),
	Run:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotName, "name", "", "Name for the snapshot (required)")
	snapshotCmd.Flags().IntVar(&snapshotBatchSize, "batch-size", 0, "Rows per scan batch (default from settings)")
	snapshotCmd.Flags().BoolVar(&snapshotHashOnly, "hash-only", false, "Store fingerprints only (no rollback, no cell-level diff)")
	snapshotCmd.MarkFlagRequired("name")
}

func runSnapshot(cmd *cobra.Command, args []string) {
	c := initContext(false)

	batch := snapshotBatchSize
	if batch <= 0 {
		batch = c.Settings.BatchSize
	}

	sum, err := snapshot.Create(cmd.Context(), c.Store, c.Chain, args[0], snapshotName, snapshot.Options{
		FullData:         !snapshotHashOnly,
		BatchSize:        batch,
		CompressionLevel: c.Settings.CompressionLevel,
		Progress:         progress.New(c.Settings.Progress),
	})
	if err != nil {
		fail(err, false)
	}

	archivePath, summaryPath := c.Workspace.SnapshotPaths(sum.Name)
	fmt.Printf("Snapshot %q created\n", sum.Name)
	fmt.Printf("├─ Rows:     %d\n", sum.RowCount)
	fmt.Printf("├─ Columns:  %d\n", sum.ColumnCount)
	if sum.ParentSnapshot != "" {
		fmt.Printf("├─ Parent:   %s\n", sum.ParentSnapshot)
	}
	fmt.Printf("├─ Archive:  %s\n", archivePath)
	fmt.Printf("└─ Summary:  %s\n", summaryPath)
}
