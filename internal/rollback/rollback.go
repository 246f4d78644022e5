package rollback

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/kilupskalvis/tabdiff/internal/detect"
	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/source"
)

// Options configure an executor run.
type Options struct {
	// DryRun stops after applying operations in memory.
	DryRun bool
	// Backup copies the target aside before rewriting. On by default
	// in the CLI.
	Backup bool
	// Force overwrites an existing backup file.
	Force bool
}

// Report describes what a rollback did (or would do).
type Report struct {
	Target     string `json:"target"`
	DryRun     bool   `json:"dry_run"`
	BackupPath string `json:"backup_path,omitempty"`
	OpsApplied int    `json:"operations_applied"`
	RowsBefore int    `json:"rows_before"`
	RowsAfter  int    `json:"rows_after"`
	ColsBefore int    `json:"columns_before"`
	ColsAfter  int    `json:"columns_after"`
	Verified   bool   `json:"verified"`
}

// Apply executes the rollback operation list against targetPath.
// baseline, when non-nil, is the state the file must match afterwards;
// a mismatch restores the backup and fails with
// RollbackVerificationFailed.
func Apply(ctx context.Context, targetPath string, baseline *model.Table, ops []model.RollbackOp, opts Options) (*Report, error) {
	src, err := source.Open(targetPath, 0)
	if err != nil {
		return nil, err
	}
	if src.Kind() == model.SourceSQL {
		return nil, errs.New(errs.UnsupportedSourceForRollback,
			"SQL sources are read-only and cannot be rolled back: %s", targetPath).With("path", targetPath)
	}
	target := src.Path()

	report := &Report{Target: target, DryRun: opts.DryRun}

	if opts.Backup && !opts.DryRun {
		backupPath := target + ".backup"
		if _, err := os.Stat(backupPath); err == nil && !opts.Force {
			return nil, errs.New(errs.IOError,
				"backup %s already exists (use --force to overwrite)", backupPath).With("path", backupPath)
		}
		if err := copyFile(target, backupPath); err != nil {
			return nil, err
		}
		report.BackupPath = backupPath
	}

	table, err := source.ReadAll(ctx, src)
	if err != nil {
		return nil, err
	}
	report.RowsBefore = len(table.Rows)
	report.ColsBefore = len(table.Schema)

	result := table.Clone()
	if err := ApplyOps(result, ops); err != nil {
		return nil, errs.Wrap(errs.RollbackVerificationFailed, err,
			"rollback operations do not apply cleanly to %s", target).With("path", target)
	}
	report.OpsApplied = len(ops)
	report.RowsAfter = len(result.Rows)
	report.ColsAfter = len(result.Schema)

	if opts.DryRun {
		return report, nil
	}

	if err := encodeTable(target, result); err != nil {
		return nil, err
	}

	if baseline != nil {
		if err := verify(ctx, target, baseline); err != nil {
			if report.BackupPath != "" {
				if restoreErr := copyFile(report.BackupPath, target); restoreErr != nil {
					slog.Error("restore from backup failed", "target", target, "error", restoreErr)
				}
			}
			return nil, err
		}
		report.Verified = true
	}

	return report, nil
}

// verify re-scans the rewritten file and requires an empty change set
// against the baseline.
func verify(ctx context.Context, target string, baseline *model.Table) error {
	src, err := source.Open(target, 0)
	if err != nil {
		return err
	}
	current, err := source.ReadAll(ctx, src)
	if err != nil {
		return err
	}
	changes, err := detect.Changes(baseline, current)
	if err != nil {
		return err
	}
	if !changes.Empty() {
		return errs.New(errs.RollbackVerificationFailed,
			"%s still differs from the target snapshot after rollback (%d row changes)",
			target, changes.RowChanges.TotalChanges()).With("path", target)
	}
	return nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "open %s", from).With("path", from)
	}
	defer in.Close()

	out, err := os.Create(to)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "create %s", to).With("path", to)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(to)
		return errs.Wrap(errs.IOError, err, "copy %s to %s", from, to).With("path", to)
	}
	if err := out.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "close %s", to).With("path", to)
	}
	return nil
}
