package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

// Rows are stored as parquet with every column an optional UTF8 byte
// array, keeping null distinct from the empty string. Parquet's own
// field ordering is not relied on for column order; schema.json is the
// authority, and cells are looked up by name on decode.

func rowsSchema(schema model.Schema) *parquet.Schema {
	group := parquet.Group{}
	for _, c := range schema {
		group[c.Name] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("rows", group)
}

// EncodeRows writes a row set as parquet bytes. Also used by the
// rollback executor to re-encode parquet table files.
func EncodeRows(schema model.Schema, rows []model.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, rowsSchema(schema))

	const chunk = 4096
	records := make([]map[string]any, 0, chunk)
	flush := func() error {
		if len(records) == 0 {
			return nil
		}
		if _, err := w.Write(records); err != nil {
			return fmt.Errorf("write row group: %w", err)
		}
		records = records[:0]
		return nil
	}

	for _, row := range rows {
		rec := make(map[string]any, len(schema))
		for i, c := range schema {
			if !row[i].Null {
				rec[c.Name] = row[i].Str
			}
		}
		records = append(records, rec)
		if len(records) == chunk {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish parquet: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRows reads parquet bytes back into rows, projecting columns
// through schema by name.
func DecodeRows(schema model.Schema, data []byte) ([]model.Row, error) {
	r := parquet.NewGenericReader[map[string]any](bytes.NewReader(data), rowsSchema(schema))
	defer r.Close()

	var rows []model.Row
	buf := make([]map[string]any, 4096)
	for i := range buf {
		buf[i] = make(map[string]any)
	}
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			row := make(model.Row, len(schema))
			for c, col := range schema {
				raw, ok := buf[i][col.Name]
				if !ok || raw == nil {
					row[c] = model.NullValue()
					continue
				}
				switch v := raw.(type) {
				case string:
					row[c] = model.String(v)
				case []byte:
					row[c] = model.String(string(v))
				default:
					row[c] = model.String(fmt.Sprintf("%v", v))
				}
			}
			rows = append(rows, row)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row group: %w", err)
		}
	}
	if rows == nil {
		rows = []model.Row{}
	}
	return rows, nil
}

// The forward delta is a structured record; its canonical JSON
// encoding travels in a single-column parquet member so replay stays
// bit-exact regardless of how the change set evolves.

type deltaRecord struct {
	Payload string `parquet:"payload"`
}

func encodeDelta(delta *model.Delta) ([]byte, error) {
	payload, err := json.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("encode delta: %w", err)
	}
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[deltaRecord](&buf)
	if _, err := w.Write([]deltaRecord{{Payload: string(payload)}}); err != nil {
		return nil, fmt.Errorf("write delta member: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish delta member: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDelta(data []byte) (*model.Delta, error) {
	r := parquet.NewGenericReader[deltaRecord](bytes.NewReader(data))
	defer r.Close()

	recs := make([]deltaRecord, 1)
	n, err := r.Read(recs)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read delta member: %w", err)
	}
	if n != 1 {
		return nil, fmt.Errorf("delta member holds %d records, want 1", n)
	}
	var delta model.Delta
	if err := json.Unmarshal([]byte(recs[0].Payload), &delta); err != nil {
		return nil, fmt.Errorf("decode delta payload: %w", err)
	}
	return &delta, nil
}
