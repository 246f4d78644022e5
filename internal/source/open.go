package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/tabdiff/internal/errs"
)

// Open resolves path to a canonical location and returns the adapter
// for its format. batchSize <= 0 selects DefaultBatchSize.
func Open(path string, batchSize int) (Source, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	canonical, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.SourceNotFound, "source not found: %s", path).With("path", path)
		}
		return nil, errs.Wrap(errs.IOError, err, "stat %s", path).With("path", path)
	}
	if info.IsDir() {
		return nil, errs.New(errs.SourceUnreadable, "source is a directory: %s", path).With("path", path)
	}

	switch ext(canonical) {
	case "csv":
		return newDelimitedSource(canonical, ',', batchSize), nil
	case "tsv":
		return newDelimitedSource(canonical, '\t', batchSize), nil
	case "json":
		return newJSONSource(canonical, false, batchSize), nil
	case "jsonl":
		return newJSONSource(canonical, true, batchSize), nil
	case "parquet":
		return newParquetSource(canonical, batchSize), nil
	case "sql":
		return newSQLSource(canonical, batchSize)
	default:
		return nil, errs.New(errs.SourceUnreadable, "unsupported source format: %s", path).With("path", path)
	}
}

// Canonicalize resolves a source path to the absolute, cleaned form
// used for chain grouping and summary storage.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errs.Wrap(errs.IOError, err, "resolve %s", path).With("path", path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// IsSupported reports whether the path has a recognized extension.
func IsSupported(path string) bool {
	switch ext(path) {
	case "csv", "tsv", "json", "jsonl", "parquet", "sql":
		return true
	}
	return false
}

func ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
