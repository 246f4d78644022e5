package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cleanupKeepFull int
	cleanupDryRun   bool
	cleanupForce    bool
	cleanupJSON     bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Strip full rows from old snapshots to save space",
	Long: `Remove the full-rows member from snapshot archives that are not
among the most recent full-data snapshots of their chain. Deltas are
preserved, so every snapshot stays reconstructable.`,
	Run: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupKeepFull, "keep-full", 0, "Full archives to keep per chain (default from settings)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report candidates without modifying anything")
	cleanupCmd.Flags().BoolVar(&cleanupForce, "force", false, "Skip confirmation")
	cleanupCmd.Flags().BoolVar(&cleanupJSON, "json", false, "Emit the report as JSON")
}

func runCleanup(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	c := initContext(cleanupJSON)

	keep := cleanupKeepFull
	if keep <= 0 {
		keep = c.Settings.KeepFull
	}

	// Preview first so the confirmation can name what it strips.
	preview, err := c.Chain.Cleanup(ctx, keep, true)
	if err != nil {
		fail(err, cleanupJSON)
	}
	if len(preview.Stripped) == 0 {
		if cleanupJSON {
			printJSON(preview)
		} else {
			fmt.Println("Nothing to clean up")
		}
		return
	}

	if cleanupDryRun {
		if cleanupJSON {
			printJSON(preview)
			return
		}
		fmt.Printf("Would strip full rows from %d snapshot(s):\n", len(preview.Stripped))
		for _, entry := range preview.Stripped {
			fmt.Printf("  %s (%s)\n", entry.Name, entry.Source)
		}
		return
	}

	if !cleanupForce && !cleanupJSON {
		fmt.Printf("About to strip full rows from %d snapshot(s), keeping %d per chain\n", len(preview.Stripped), keep)
		if !confirm("Continue?") {
			fmt.Println("Aborted")
			return
		}
	}

	report, err := c.Chain.Cleanup(ctx, keep, false)
	if err != nil {
		fail(err, cleanupJSON)
	}

	if cleanupJSON {
		printJSON(report)
		return
	}
	fmt.Printf("Stripped full rows from %d snapshot(s), freed ~%d bytes\n",
		len(report.Stripped), report.TotalFreed)
	for _, entry := range report.Stripped {
		fmt.Printf("  %s\n", entry.Name)
	}
}
