// Package hash computes the Blake3 fingerprints tabdiff compares:
// schema, per-column, and per-row digests, all hex-encoded.
//
// The canonical cell encoding is length-prefixed so that adjacent
// values can never be confused: each column name and value is written
// as an 8-byte big-endian length followed by the raw bytes. A present
// value is prefixed with 0x00; a null cell is the single byte 0xFF,
// which keeps null distinct from the empty string.
package hash

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"runtime"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

const (
	markerValue = 0x00
	markerNull  = 0xFF
)

func appendLenPrefixed(buf []byte, s string) []byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, s...)
}

func appendCell(buf []byte, column string, v model.Value) []byte {
	buf = appendLenPrefixed(buf, column)
	return appendCellValue(buf, v)
}

// appendCellValue encodes a value without its column name. Column
// fingerprints use this form so that a renamed column with identical
// data keeps an identical digest.
func appendCellValue(buf []byte, v model.Value) []byte {
	if v.Null {
		return append(buf, markerNull)
	}
	buf = append(buf, markerValue)
	return appendLenPrefixed(buf, v.Str)
}

func hexSum(h *blake3.Hasher) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Schema fingerprints an ordered schema.
func Schema(s model.Schema) string {
	h := blake3.New()
	buf := make([]byte, 0, 64)
	for _, c := range s {
		buf = buf[:0]
		buf = appendLenPrefixed(buf, c.Name)
		buf = appendLenPrefixed(buf, c.Type)
		if c.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		h.Write(buf)
	}
	return hexSum(h)
}

// Row fingerprints a row over the full schema.
func Row(schema model.Schema, row model.Row) string {
	h := blake3.New()
	buf := make([]byte, 0, 128)
	for i, c := range schema {
		buf = buf[:0]
		buf = appendCell(buf, c.Name, row[i])
		h.Write(buf)
	}
	return hexSum(h)
}

// RowSubset fingerprints a row over a column subset. columns gives the
// subset in fingerprint order; positions maps each subset column to its
// index in the row's own schema. Used for intersection-schema pairing.
func RowSubset(columns model.Schema, positions []int, row model.Row) string {
	h := blake3.New()
	buf := make([]byte, 0, 128)
	for i, c := range columns {
		buf = buf[:0]
		buf = appendCell(buf, c.Name, row[positions[i]])
		h.Write(buf)
	}
	return hexSum(h)
}

// Reader fingerprints a byte stream (used for the source hash).
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hexSum(h), nil
}

// Bytes fingerprints a byte slice.
func Bytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Result is the output of a full fingerprint pass over a table.
type Result struct {
	SchemaHash   string
	ColumnHashes *model.ColumnHashes
	RowHashes    []string
	RowCount     uint64
}

// Accumulator computes all fingerprints in a single pass over a row
// stream. Row hashing within a batch is parallel; each column hasher
// is fed cells sequentially so its digest stays order-sensitive.
type Accumulator struct {
	schema  model.Schema
	columns []*blake3.Hasher
	rows    []string
	count   uint64
	workers int
}

// NewAccumulator prepares per-column hasher state for schema.
func NewAccumulator(schema model.Schema) *Accumulator {
	cols := make([]*blake3.Hasher, len(schema))
	for i := range cols {
		cols[i] = blake3.New()
	}
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	return &Accumulator{schema: schema, columns: cols, workers: workers}
}

// AddBatch folds a batch of rows into the accumulator.
func (a *Accumulator) AddBatch(rows []model.Row) {
	if len(rows) == 0 {
		return
	}

	// Per-row digests, parallel across the batch, collected by index
	// so source order is preserved.
	batch := make([]string, len(rows))
	var wg sync.WaitGroup
	chunk := (len(rows) + a.workers - 1) / a.workers
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				batch[i] = Row(a.schema, rows[i])
			}
		}(start, end)
	}
	wg.Wait()
	a.rows = append(a.rows, batch...)

	// Column digests are order-sensitive: feed cells in row order,
	// one goroutine per column.
	var cwg sync.WaitGroup
	for ci := range a.columns {
		cwg.Add(1)
		go func(ci int) {
			defer cwg.Done()
			h := a.columns[ci]
			buf := make([]byte, 0, 128)
			for _, row := range rows {
				buf = buf[:0]
				buf = appendCellValue(buf, row[ci])
				h.Write(buf)
			}
		}(ci)
	}
	cwg.Wait()

	a.count += uint64(len(rows))
}

// Count returns the rows folded in so far.
func (a *Accumulator) Count() uint64 { return a.count }

// Finish returns the accumulated fingerprints.
func (a *Accumulator) Finish() *Result {
	hashes := model.NewColumnHashes()
	for i, c := range a.schema {
		hashes.Set(c.Name, hexSum(a.columns[i]))
	}
	return &Result{
		SchemaHash:   Schema(a.schema),
		ColumnHashes: hashes,
		RowHashes:    a.rows,
		RowCount:     a.count,
	}
}

// Table fingerprints a fully materialized table in one call.
func Table(t *model.Table) *Result {
	acc := NewAccumulator(t.Schema)
	acc.AddBatch(t.Rows)
	return acc.Finish()
}

// Column fingerprints a single column of a materialized table. Used by
// the rename heuristic, which needs digests for columns outside the
// shared schema.
func Column(t *model.Table, name string) (string, bool) {
	idx := t.Schema.Index(name)
	if idx < 0 {
		return "", false
	}
	h := blake3.New()
	buf := make([]byte, 0, 128)
	for _, row := range t.Rows {
		buf = buf[:0]
		buf = appendCellValue(buf, row[idx])
		h.Write(buf)
	}
	return hexSum(h), true
}
