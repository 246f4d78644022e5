// Package model defines the shared data types for tabdiff: cell values,
// schemas, rows, snapshot summaries, and change sets.
package model

import (
	"bytes"
	"encoding/json"
)

// Value is a single cell. Null and the empty string are distinct
// throughout the system; comparisons are on the canonical string form.
type Value struct {
	Null bool
	Str  string
}

// NullValue returns the null cell value.
func NullValue() Value { return Value{Null: true} }

// String returns a non-null cell value.
func String(s string) Value { return Value{Str: s} }

// Equal compares two cells. Two nulls are equal; a null never equals
// a string, not even the empty one.
func (v Value) Equal(o Value) bool {
	if v.Null || o.Null {
		return v.Null == o.Null
	}
	return v.Str == o.Str
}

var jsonNull = []byte("null")

// MarshalJSON encodes null cells as JSON null and everything else as a
// JSON string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Null {
		return jsonNull, nil
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts JSON null or a string.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*v = Value{Null: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Value{Str: s}
	return nil
}

// Row is an ordered tuple of cells, one per schema column.
type Row []Value

// Clone returns a copy that shares no storage with the receiver.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Table is a fully materialized row set.
type Table struct {
	Schema Schema
	Rows   []Row
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r.Clone()
	}
	return &Table{Schema: t.Schema.Clone(), Rows: rows}
}
