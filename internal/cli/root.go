// Package cli implements the tabdiff command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/tabdiff/internal/chain"
	"github.com/kilupskalvis/tabdiff/internal/config"
	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/store"
	"github.com/kilupskalvis/tabdiff/internal/workspace"
)

var (
	workspaceFlag string
	verboseFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "tabdiff",
	Short: "Snapshot-based diff and rollback for tabular data",
	Long: `tabdiff records content-addressed snapshots of tabular datasets
(CSV, TSV, JSON, Parquet, SQL query results), computes fine-grained
differences between snapshots or against the current file, and can
roll a file back to any earlier snapshot state.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx driving cancellation.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "Override workspace location")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// cmdContext holds the resources most commands need.
type cmdContext struct {
	Workspace *workspace.Workspace
	Settings  *config.Settings
	Store     *store.Store
	Chain     *chain.Manager
}

// initContext locates the workspace and wires the store and chain
// manager. Failures exit the process.
func initContext(jsonMode bool) *cmdContext {
	ws, err := workspace.Find(workspaceFlag)
	if err != nil {
		fail(err, jsonMode)
	}
	settings, err := config.Load(ws.Root)
	if err != nil {
		fail(err, jsonMode)
	}
	st := store.New(ws)
	return &cmdContext{
		Workspace: ws,
		Settings:  settings,
		Store:     st,
		Chain:     chain.NewManager(st, settings.CompressionLevel),
	}
}

// fail reports an error and exits non-zero. JSON modes emit a
// structured error object instead of partial results.
func fail(err error, jsonMode bool) {
	if jsonMode {
		kind := string(errs.KindOf(err))
		if kind == "" {
			kind = string(errs.IOError)
		}
		payload := map[string]any{
			"error": map[string]any{
				"kind":    kind,
				"message": err.Error(),
			},
		}
		var terr *errs.Error
		if errors.As(err, &terr) && len(terr.Context) > 0 {
			payload["error"].(map[string]any)["context"] = terr.Context
		}
		out, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

// exitError prints a plain error and exits.
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitError("encode output: %v", err)
	}
	fmt.Println(string(out))
}
