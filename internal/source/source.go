// Package source adapts tabular inputs (CSV, TSV, JSON, JSONL, Parquet,
// SQL query files) to a common schema-plus-row-stream interface. Rows
// are yielded exactly once, in a deterministic order: file order for
// files, result order for SQL. Null cells are distinguished from empty
// strings throughout.
package source

import (
	"context"
	"io"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// DefaultBatchSize bounds the memory used by a scan.
const DefaultBatchSize = 10000

// Source is an opaque table source.
type Source interface {
	// Kind reports whether this is a file or an SQL query source.
	Kind() model.SourceKind
	// Path is the canonical path of the underlying file.
	Path() string
	// Describe reads only the column list and declared types.
	Describe(ctx context.Context) (model.Schema, error)
	// Scan yields every row exactly once in source order.
	Scan(ctx context.Context) (RowStream, error)
	// Fingerprint hashes the source itself (file bytes, or the
	// substituted query text for SQL sources).
	Fingerprint() (string, error)
}

// RowStream is a lazy, finite, non-restartable iterator of row batches.
type RowStream interface {
	// Next returns the next batch, or io.EOF when the stream is
	// exhausted. Cancellation is observed at batch boundaries and
	// surfaces as a Cancelled error.
	Next(ctx context.Context) ([]model.Row, error)
	Close() error
}

// checkCancelled converts context errors into the stable taxonomy.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Cancelled, err, "operation cancelled")
	}
	return nil
}

// ReadAll drains a source into memory.
func ReadAll(ctx context.Context, src Source) (*model.Table, error) {
	schema, err := src.Describe(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := src.Scan(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var rows []model.Row
	for {
		batch, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return &model.Table{Schema: schema, Rows: rows}, nil
}
