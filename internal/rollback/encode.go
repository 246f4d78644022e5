package rollback

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/tabdiff/internal/archive"
	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// encodeTable re-encodes a table in the format implied by the target
// path's extension and writes it atomically (staged file + rename).
func encodeTable(path string, t *model.Table) error {
	var data []byte
	var err error

	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "csv":
		data, err = encodeDelimited(t, ',')
	case "tsv":
		data, err = encodeDelimited(t, '\t')
	case "json":
		data, err = encodeJSON(t, false)
	case "jsonl":
		data, err = encodeJSON(t, true)
	case "parquet":
		data, err = archive.EncodeRows(t.Schema, t.Rows)
		if err != nil {
			err = errs.Wrap(errs.IOError, err, "encode parquet for %s", path)
		}
	default:
		return errs.New(errs.UnsupportedSourceForRollback,
			"cannot re-encode %s: unsupported format", path).With("path", path)
	}
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".rollback-tmp-*")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "stage rewrite of %s", path).With("path", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.IOError, err, "write staged %s", path).With("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.IOError, err, "close staged %s", path).With("path", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.IOError, err, "replace %s", path).With("path", path)
	}
	return nil
}

// encodeDelimited writes CSV/TSV. Delimited formats cannot express
// null, so null cells become empty fields; sources scanned from these
// formats never produce nulls, keeping round trips exact.
func encodeDelimited(t *model.Table, comma rune) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma

	if err := w.Write(t.Schema.Names()); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "write header")
	}
	record := make([]string, len(t.Schema))
	for _, row := range t.Rows {
		for i, v := range row {
			if v.Null {
				record[i] = ""
			} else {
				record[i] = v.Str
			}
		}
		if err := w.Write(record); err != nil {
			return nil, errs.Wrap(errs.IOError, err, "write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errs.Wrap(errs.IOError, err, "flush")
	}
	return buf.Bytes(), nil
}

// encodeJSON writes an array of objects (or one object per line) with
// keys in schema column order. Numeric and boolean cells that scanned
// from bare literals are written back as bare literals.
func encodeJSON(t *model.Table, lines bool) ([]byte, error) {
	var buf bytes.Buffer

	writeObject := func(row model.Row) error {
		buf.WriteByte('{')
		for i, col := range t.Schema {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col.Name)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(encodeJSONValue(col, row[i]))
		}
		buf.WriteByte('}')
		return nil
	}

	if lines {
		for _, row := range t.Rows {
			if err := writeObject(row); err != nil {
				return nil, errs.Wrap(errs.IOError, err, "encode row")
			}
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	}

	buf.WriteByte('[')
	for ri, row := range t.Rows {
		if ri > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString("  ")
		if err := writeObject(row); err != nil {
			return nil, errs.Wrap(errs.IOError, err, "encode row")
		}
	}
	if len(t.Rows) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte(']')
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func encodeJSONValue(col model.Column, v model.Value) []byte {
	if v.Null {
		return []byte("null")
	}
	switch col.Type {
	case "INTEGER", "FLOAT", "BOOLEAN":
		// The scanner kept the literal's exact text; emit it verbatim
		// when it is still a valid bare literal.
		if json.Valid([]byte(v.Str)) && v.Str != "" && v.Str[0] != '"' {
			return []byte(v.Str)
		}
	}
	quoted, err := json.Marshal(v.Str)
	if err != nil {
		return []byte(`""`)
	}
	return quoted
}
