// Package snapshot creates snapshots: it scans a source, drives the
// hasher, links the new snapshot into its chain, computes the forward
// delta against the parent, and writes the archive and summary.
package snapshot

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kilupskalvis/tabdiff/internal/archive"
	"github.com/kilupskalvis/tabdiff/internal/chain"
	"github.com/kilupskalvis/tabdiff/internal/detect"
	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/progress"
	"github.com/kilupskalvis/tabdiff/internal/source"
	"github.com/kilupskalvis/tabdiff/internal/store"
)

// Size advisories for large sources.
const (
	adviseBytes = 100 << 20 // 100 MB: informational
	warnBytes   = 1 << 30   // 1 GB: suggest hash-only mode
)

// Options configure snapshot creation.
type Options struct {
	// FullData stores the complete table in the archive, enabling
	// cell-level diffs and rollback. Default in the CLI.
	FullData bool
	// BatchSize bounds scan memory; <= 0 uses the source default.
	BatchSize int
	// CompressionLevel is the archive zstd level.
	CompressionLevel int
	// Progress receives phase and row-count events.
	Progress progress.Reporter
}

// Create scans input and writes a new snapshot called name.
func Create(ctx context.Context, st *store.Store, mgr *chain.Manager, input, name string, opts Options) (*model.Summary, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if st.Workspace().SnapshotExists(name) {
		return nil, errs.New(errs.NameExists, "snapshot %q already exists", name).With("snapshot", name)
	}
	reporter := opts.Progress
	if reporter == nil {
		reporter = progress.New(false)
	}

	src, err := source.Open(input, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	adviseOnSize(src)

	schema, err := src.Describe(ctx)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, errs.New(errs.SchemaEmpty, "source %s has no columns", input).With("path", input)
	}

	// Single pass: the hasher consumes every batch, and with full data
	// requested the same batches are retained for the archive.
	reporter.Step("Scanning " + input)
	stream, err := src.Scan(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	acc := hash.NewAccumulator(schema)
	var rows []model.Row
	for {
		batch, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		acc.AddBatch(batch)
		if opts.FullData {
			rows = append(rows, batch...)
		}
		reporter.Rows(acc.Count())
	}
	result := acc.Finish()
	reporter.Done("Hashed " + input)

	sourceHash, err := src.Fingerprint()
	if err != nil {
		return nil, err
	}

	sum := &model.Summary{
		FormatVersion: model.FormatVersion,
		Name:          name,
		Created:       time.Now().UTC(),
		Source:        input,
		SourcePath:    src.Path(),
		SourceHash:    sourceHash,
		RowCount:      result.RowCount,
		ColumnCount:   len(schema),
		SchemaHash:    result.SchemaHash,
		Columns:       result.ColumnHashes,
		Sampling:      model.SamplingInfo{Strategy: "full", RowsHashed: result.RowCount},
		HasFullData:   opts.FullData,
	}

	parent, err := mgr.ParentFor(src.Path())
	if err != nil {
		return nil, err
	}

	var delta *model.Delta
	if parent != nil {
		if parent.Name == name {
			return nil, errs.New(errs.NameExists, "snapshot %q already exists", name).With("snapshot", name)
		}
		sum.ParentSnapshot = parent.Name
		sum.SequenceNumber = parent.SequenceNumber + 1

		if opts.FullData {
			delta, err = computeDelta(ctx, mgr, parent, &model.Table{Schema: schema, Rows: rows})
			if err != nil {
				return nil, err
			}
		}
	}
	if delta != nil {
		sum.CanReconstructParent = true
		sum.DeltaFromParent = &model.DeltaInfo{ParentName: parent.Name}
	}

	if !opts.FullData && delta == nil && parent != nil {
		slog.Debug("hash-only snapshot stores no delta", "snapshot", name, "parent", parent.Name)
	}

	arch := &archive.Archive{
		Metadata:     model.ArchiveMetadata{Summary: *sum, ArchiveSchemaVersion: model.ArchiveSchemaVersion},
		Schema:       schema,
		ColumnHashes: result.ColumnHashes,
		Delta:        delta,
	}
	if opts.FullData {
		if rows == nil {
			rows = []model.Row{}
		}
		arch.Rows = rows
	}

	reporter.Step("Writing archive")
	if err := archive.Write(st.ArchivePath(name), arch, opts.CompressionLevel); err != nil {
		return nil, err
	}
	if sum.DeltaFromParent != nil {
		sum.DeltaFromParent.CompressedSize = arch.DeltaSize
	}

	// The summary is written only after the archive is safely in
	// place, so a crash never leaves a summary pointing at nothing.
	if err := st.WriteSummary(sum); err != nil {
		return nil, err
	}
	reporter.Done("Snapshot " + name + " created")
	return sum, nil
}

// computeDelta builds the forward delta parent→current. The parent's
// rows come from its archive, reconstructed through the chain when
// cleanup already stripped them.
func computeDelta(ctx context.Context, mgr *chain.Manager, parent *model.Summary, current *model.Table) (*model.Delta, error) {
	parentTable, err := mgr.Reconstruct(ctx, parent.Name)
	if err != nil {
		if errs.IsKind(err, errs.ChainBroken) {
			// No reconstructable parent data: the snapshot simply
			// starts without a delta.
			slog.Debug("parent not reconstructable, skipping delta", "parent", parent.Name)
			return nil, nil
		}
		return nil, err
	}

	forward, err := detect.Changes(parentTable, current)
	if err != nil {
		return nil, err
	}
	reverse, err := detect.Changes(current, parentTable)
	if err != nil {
		return nil, err
	}
	return &model.Delta{
		ParentName:    parent.Name,
		SchemaChanges: forward.SchemaChanges,
		RowChanges:    forward.RowChanges,
		ForwardOps:    reverse.RollbackOps,
		RollbackOps:   forward.RollbackOps,
	}, nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." || name == store.Latest {
		return errs.New(errs.NameExists, "invalid snapshot name %q", name).With("snapshot", name)
	}
	return nil
}

func adviseOnSize(src source.Source) {
	info, err := os.Stat(src.Path())
	if err != nil {
		return
	}
	switch {
	case info.Size() > warnBytes:
		slog.Warn("source exceeds 1 GB; consider --hash-only for faster snapshots",
			"path", src.Path(), "bytes", info.Size())
	case info.Size() > adviseBytes:
		slog.Info("large source file", "path", src.Path(), "bytes", info.Size())
	}
}
