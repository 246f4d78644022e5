// Package rollback applies ordered rollback operations: to an
// in-memory table during delta replay, and to an on-disk table file
// when restoring a snapshot state.
package rollback

import (
	"fmt"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

// ApplyOps runs the operation list against t in order, mutating it in
// place. Indices in each operation refer to the table as it stands
// when that operation runs; the emission order of the detector
// guarantees they stay valid.
func ApplyOps(t *model.Table, ops []model.RollbackOp) error {
	for i, op := range ops {
		if err := applyOp(t, op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op.Type, err)
		}
	}
	return nil
}

func applyOp(t *model.Table, op model.RollbackOp) error {
	p := op.Params
	switch op.Type {
	case model.OpRemoveRow:
		if p.RowIndex == nil {
			return fmt.Errorf("missing row_index")
		}
		i := int(*p.RowIndex)
		if i < 0 || i >= len(t.Rows) {
			return fmt.Errorf("row index %d out of range (%d rows)", i, len(t.Rows))
		}
		t.Rows = append(t.Rows[:i], t.Rows[i+1:]...)

	case model.OpInsertRow:
		if p.RowIndex == nil {
			return fmt.Errorf("missing row_index")
		}
		i := int(*p.RowIndex)
		if i < 0 || i > len(t.Rows) {
			return fmt.Errorf("insert index %d out of range (%d rows)", i, len(t.Rows))
		}
		row := make(model.Row, len(t.Schema))
		for c, col := range t.Schema {
			if v, ok := p.Values[col.Name]; ok {
				row[c] = v
			} else {
				row[c] = model.NullValue()
			}
		}
		t.Rows = append(t.Rows, nil)
		copy(t.Rows[i+1:], t.Rows[i:])
		t.Rows[i] = row

	case model.OpUpdateCell:
		if p.RowIndex == nil {
			return fmt.Errorf("missing row_index")
		}
		i := int(*p.RowIndex)
		if i < 0 || i >= len(t.Rows) {
			return fmt.Errorf("row index %d out of range (%d rows)", i, len(t.Rows))
		}
		c := t.Schema.Index(p.Column)
		if c < 0 {
			return fmt.Errorf("unknown column %q", p.Column)
		}
		// A JSON null value decodes to a nil pointer; both mean the
		// cell becomes null.
		value := model.NullValue()
		if p.Value != nil {
			value = *p.Value
		}
		t.Rows[i][c] = value

	case model.OpRenameColumn:
		c := t.Schema.Index(p.From)
		if c < 0 {
			return fmt.Errorf("unknown column %q", p.From)
		}
		if t.Schema.Has(p.To) {
			return fmt.Errorf("column %q already exists", p.To)
		}
		t.Schema[c].Name = p.To

	case model.OpAddColumn:
		if t.Schema.Has(p.Name) {
			return fmt.Errorf("column %q already exists", p.Name)
		}
		pos := len(t.Schema)
		if p.Position != nil && *p.Position >= 0 && *p.Position < pos {
			pos = *p.Position
		}
		col := model.Column{Name: p.Name, Type: p.DataType, Nullable: true}
		if p.Nullable != nil {
			col.Nullable = *p.Nullable
		}
		t.Schema = append(t.Schema, model.Column{})
		copy(t.Schema[pos+1:], t.Schema[pos:])
		t.Schema[pos] = col

		def := model.NullValue()
		if p.Default != nil {
			def = *p.Default
		}
		for i, row := range t.Rows {
			row = append(row, model.Value{})
			copy(row[pos+1:], row[pos:])
			row[pos] = def
			t.Rows[i] = row
		}

	case model.OpRemoveColumn:
		c := t.Schema.Index(p.Name)
		if c < 0 {
			return fmt.Errorf("unknown column %q", p.Name)
		}
		t.Schema = append(t.Schema[:c], t.Schema[c+1:]...)
		for i, row := range t.Rows {
			t.Rows[i] = append(row[:c], row[c+1:]...)
		}

	case model.OpReorderColumns:
		if len(p.Order) != len(t.Schema) {
			return fmt.Errorf("final order names %d columns, table has %d", len(p.Order), len(t.Schema))
		}
		perm := make([]int, len(p.Order))
		for i, name := range p.Order {
			c := t.Schema.Index(name)
			if c < 0 {
				return fmt.Errorf("unknown column %q in final order", name)
			}
			perm[i] = c
		}
		newSchema := make(model.Schema, len(perm))
		for i, c := range perm {
			newSchema[i] = t.Schema[c]
		}
		t.Schema = newSchema
		for ri, row := range t.Rows {
			newRow := make(model.Row, len(perm))
			for i, c := range perm {
				newRow[i] = row[c]
			}
			t.Rows[ri] = newRow
		}

	case model.OpChangeType:
		c := t.Schema.Index(p.Name)
		if c < 0 {
			return fmt.Errorf("unknown column %q", p.Name)
		}
		t.Schema[c].Type = p.NewType

	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	return nil
}
