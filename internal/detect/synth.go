package detect

import (
	"sort"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

// synthesizeRollback emits the ordered operation list that transforms
// the current table back into the baseline. Schema operations come
// first (remove, add, reorder, rename, type change, so names never
// collide transiently), then row removals in descending current index,
// row insertions in ascending baseline index, and cell updates in
// ascending baseline index with columns in baseline order.
func synthesizeRollback(
	baseline, current *model.Table,
	schemaChanges *model.SchemaChanges,
	rowChanges *model.RowChanges,
) []model.RollbackOp {
	var ops []model.RollbackOp

	// Columns added in current are dropped.
	for _, add := range schemaChanges.Added {
		ops = append(ops, model.RemoveColumnOp(add.Name))
	}

	// Columns removed from baseline are restored at their baseline
	// positions; per-row values come back through InsertRow (for
	// removed rows) and UpdateCell (for paired rows) below.
	for _, rem := range schemaChanges.Removed {
		ops = append(ops, model.AddColumnOp(rem.Name, rem.Type, rem.Position, rem.Nullable, model.NullValue()))
	}

	// Reorder into baseline order. Renamed columns still carry their
	// current names at this point; the renames follow.
	currentToBaseline := make(map[string]string, len(schemaChanges.Renamed))
	baselineToCurrent := make(map[string]string, len(schemaChanges.Renamed))
	for _, ren := range schemaChanges.Renamed {
		currentToBaseline[ren.To] = ren.From
		baselineToCurrent[ren.From] = ren.To
	}
	target := make([]string, len(baseline.Schema))
	for i, col := range baseline.Schema {
		if to, ok := baselineToCurrent[col.Name]; ok {
			target[i] = to
		} else {
			target[i] = col.Name
		}
	}
	if !equalStrings(target, projectedOrder(current.Schema, schemaChanges)) {
		ops = append(ops, model.ReorderColumnsOp(target))
	}

	for _, ren := range schemaChanges.Renamed {
		ops = append(ops, model.RenameColumnOp(ren.To, ren.From))
	}

	for _, tc := range schemaChanges.TypeChanges {
		ops = append(ops, model.ChangeTypeOp(tc.Name, tc.Before))
	}
	// A renamed column may also have changed its declared type.
	for _, ren := range schemaChanges.Renamed {
		bIdx := baseline.Schema.Index(ren.From)
		cIdx := current.Schema.Index(ren.To)
		if bIdx >= 0 && cIdx >= 0 && baseline.Schema[bIdx].Type != current.Schema[cIdx].Type {
			ops = append(ops, model.ChangeTypeOp(ren.From, baseline.Schema[bIdx].Type))
		}
	}

	// Added rows go first, highest current index first so the
	// remaining indices stay valid.
	added := append([]model.RowAddition(nil), rowChanges.Added...)
	sort.Slice(added, func(i, j int) bool { return added[i].RowIndex > added[j].RowIndex })
	for _, add := range added {
		ops = append(ops, model.RemoveRowOp(add.RowIndex))
	}

	// Removed rows come back at their baseline positions, lowest
	// first, carrying the full baseline row including any restored
	// columns.
	removed := append([]model.RowRemoval(nil), rowChanges.Removed...)
	sort.Slice(removed, func(i, j int) bool { return removed[i].RowIndex < removed[j].RowIndex })
	removedSet := make(map[uint64]bool, len(removed))
	for _, rem := range removed {
		removedSet[rem.RowIndex] = true
		ops = append(ops, model.InsertRowOp(rem.RowIndex, rem.Data))
	}

	// Cell updates: modified cells revert to their before values, and
	// paired rows get their restored-column values back (the column
	// came back null-filled).
	modsByRow := make(map[uint64]map[string]model.CellChange, len(rowChanges.Modified))
	for _, mod := range rowChanges.Modified {
		modsByRow[mod.RowIndex] = mod.Changes
	}
	removedCols := make(map[string]int, len(schemaChanges.Removed))
	for _, rem := range schemaChanges.Removed {
		removedCols[rem.Name] = baseline.Schema.Index(rem.Name)
	}

	for bi := range baseline.Rows {
		b := uint64(bi)
		if removedSet[b] {
			continue
		}
		changes := modsByRow[b]
		if changes == nil && len(removedCols) == 0 {
			continue
		}
		for _, col := range baseline.Schema {
			if idx, ok := removedCols[col.Name]; ok {
				val := baseline.Rows[bi][idx]
				if !val.Null {
					ops = append(ops, model.UpdateCellOp(b, col.Name, val))
				}
				continue
			}
			if change, ok := changes[col.Name]; ok {
				ops = append(ops, model.UpdateCellOp(b, col.Name, change.Before))
			}
		}
	}

	return ops
}

// projectedOrder simulates the column list after the remove and add
// operations above have run against the current schema.
func projectedOrder(current model.Schema, schemaChanges *model.SchemaChanges) []string {
	addedSet := make(map[string]bool, len(schemaChanges.Added))
	for _, add := range schemaChanges.Added {
		addedSet[add.Name] = true
	}
	var names []string
	for _, col := range current {
		if !addedSet[col.Name] {
			names = append(names, col.Name)
		}
	}
	for _, rem := range schemaChanges.Removed {
		pos := rem.Position
		if pos > len(names) {
			pos = len(names)
		}
		names = append(names[:pos], append([]string{rem.Name}, names[pos:]...)...)
	}
	return names
}
