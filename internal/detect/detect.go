// Package detect implements change detection between a baseline table
// and a current table: schema diff, fingerprint-based row pairing,
// cell-level before/after extraction, and synthesis of the ordered
// rollback operations that turn the current state back into the
// baseline.
package detect

import (
	"sort"
	"sync"

	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// similarityLimit disables the O(n*m) similarity pass above this many
// candidates on either side, bounding worst-case cost.
const similarityLimit = 1000

// Changes computes the full change set transforming baseline into
// current. The result is deterministic for identical inputs: every
// stage iterates slices in index order, never map order.
func Changes(baseline, current *model.Table) (*model.ChangeSet, error) {
	schemaChanges := diffSchemas(baseline, current)
	rowChanges := diffRows(baseline, current)
	ops := synthesizeRollback(baseline, current, &schemaChanges, &rowChanges)

	return &model.ChangeSet{
		SchemaChanges: schemaChanges,
		RowChanges:    rowChanges,
		RollbackOps:   ops,
	}, nil
}

// diffSchemas compares the two ordered column lists.
func diffSchemas(baseline, current *model.Table) model.SchemaChanges {
	b, c := baseline.Schema, current.Schema

	var changes model.SchemaChanges

	var added []model.ColumnAddition
	for pos, col := range c {
		if !b.Has(col.Name) {
			added = append(added, model.ColumnAddition{
				Name: col.Name, Type: col.Type, Position: pos, Nullable: col.Nullable,
			})
		}
	}
	var removed []model.ColumnRemoval
	for pos, col := range b {
		if !c.Has(col.Name) {
			removed = append(removed, model.ColumnRemoval{
				Name: col.Name, Type: col.Type, Position: pos, Nullable: col.Nullable,
			})
		}
	}

	for _, col := range b {
		if idx := c.Index(col.Name); idx >= 0 && c[idx].Type != col.Type {
			changes.TypeChanges = append(changes.TypeChanges, model.TypeChange{
				Name: col.Name, Before: col.Type, After: c[idx].Type,
			})
		}
	}

	// Rename heuristic: with equal numbers of added and removed
	// columns, pair those whose data fingerprints are identical.
	if len(added) > 0 && len(added) == len(removed) {
		usedAdd := make([]bool, len(added))
		var keptRemoved []model.ColumnRemoval
		for _, rem := range removed {
			remHash, _ := hash.Column(baseline, rem.Name)
			paired := false
			for ai, add := range added {
				if usedAdd[ai] {
					continue
				}
				addHash, _ := hash.Column(current, add.Name)
				if remHash == addHash {
					changes.Renamed = append(changes.Renamed, model.ColumnRename{From: rem.Name, To: add.Name})
					usedAdd[ai] = true
					paired = true
					break
				}
			}
			if !paired {
				keptRemoved = append(keptRemoved, rem)
			}
		}
		removed = keptRemoved
		var keptAdded []model.ColumnAddition
		for ai, add := range added {
			if !usedAdd[ai] {
				keptAdded = append(keptAdded, add)
			}
		}
		added = keptAdded
	}

	changes.Added = added
	changes.Removed = removed

	// Column order change over the shared columns.
	sharedB := b.Intersection(c).Names()
	sharedC := c.Intersection(b).Names()
	if !equalStrings(sharedB, sharedC) {
		changes.ColumnOrder = &model.ColumnOrderChange{Before: b.Names(), After: c.Names()}
	}

	return changes
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rowPair is a matched baseline/current row pair.
type rowPair struct {
	b, c int
}

// diffRows partitions rows into unchanged, modified, added, removed.
func diffRows(baseline, current *model.Table) model.RowChanges {
	// Pairing fingerprints use the intersection schema in baseline
	// column order; columns missing on either side are ignored.
	shared := baseline.Schema.Intersection(current.Schema)
	bPos := positions(shared, baseline.Schema)
	cPos := positions(shared, current.Schema)

	bFps := fingerprintRows(shared, bPos, baseline.Rows)
	cFps := fingerprintRows(shared, cPos, current.Rows)

	// FIFO multimap: fingerprint -> queue of current row indices in
	// source order. Walking baseline rows in order and popping the
	// head pairs duplicates deterministically.
	cByFp := make(map[string][]int)
	for i, fp := range cFps {
		cByFp[fp] = append(cByFp[fp], i)
	}

	pairedB := make([]bool, len(baseline.Rows))
	pairedC := make([]bool, len(current.Rows))
	for i, fp := range bFps {
		queue := cByFp[fp]
		if len(queue) == 0 {
			continue
		}
		cByFp[fp] = queue[1:]
		pairedB[i] = true
		pairedC[queue[0]] = true
	}

	var candRemoved, candAdded []int
	for i := range baseline.Rows {
		if !pairedB[i] {
			candRemoved = append(candRemoved, i)
		}
	}
	for i := range current.Rows {
		if !pairedC[i] {
			candAdded = append(candAdded, i)
		}
	}

	// Positional pairing: a candidate pair at the same index is an
	// in-place edit.
	var modified []rowPair
	addedSet := make(map[int]bool, len(candAdded))
	for _, ci := range candAdded {
		addedSet[ci] = true
	}
	var stillRemoved []int
	for _, bi := range candRemoved {
		if addedSet[bi] {
			modified = append(modified, rowPair{b: bi, c: bi})
			delete(addedSet, bi)
		} else {
			stillRemoved = append(stillRemoved, bi)
		}
	}
	var stillAdded []int
	for _, ci := range candAdded {
		if addedSet[ci] {
			stillAdded = append(stillAdded, ci)
		}
	}
	candRemoved, candAdded = stillRemoved, stillAdded

	// Similarity pass for small residuals: pair rows sharing at least
	// half their cells, preferring nearby indices.
	if len(candRemoved) > 0 && len(candAdded) > 0 &&
		len(candRemoved) <= similarityLimit && len(candAdded) <= similarityLimit {
		candRemoved, candAdded, modified = similarityPairs(
			baseline, current, shared, bPos, cPos, candRemoved, candAdded, modified)
	}

	sort.Slice(modified, func(i, j int) bool { return modified[i].b < modified[j].b })

	return model.RowChanges{
		Modified: cellDiffs(baseline, current, shared, bPos, cPos, modified),
		Added:    rowAdditions(current, candAdded),
		Removed:  rowRemovals(baseline, candRemoved),
	}
}

func positions(shared, schema model.Schema) []int {
	out := make([]int, len(shared))
	for i, c := range shared {
		out[i] = schema.Index(c.Name)
	}
	return out
}

// fingerprintRows hashes every row over the shared columns, parallel
// across rows with results collected by index.
func fingerprintRows(shared model.Schema, pos []int, rows []model.Row) []string {
	fps := make([]string, len(rows))
	var wg sync.WaitGroup
	const chunk = 2048
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fps[i] = hash.RowSubset(shared, pos, rows[i])
			}
		}(start, end)
	}
	wg.Wait()
	return fps
}

// similarityPairs reclassifies residual removed/added rows whose cells
// mostly agree. Threshold is half the shared columns, rounded up; ties
// prefer the smaller index distance, then the smaller current index.
func similarityPairs(
	baseline, current *model.Table,
	shared model.Schema, bPos, cPos []int,
	candRemoved, candAdded []int,
	modified []rowPair,
) (removed, added []int, out []rowPair) {
	threshold := (len(shared) + 1) / 2
	if threshold == 0 {
		return candRemoved, candAdded, modified
	}

	usedAdded := make([]bool, len(candAdded))
	for _, bi := range candRemoved {
		bestScore, bestIdx := -1, -1
		for ai, ci := range candAdded {
			if usedAdded[ai] {
				continue
			}
			score := equalCells(baseline.Rows[bi], current.Rows[ci], bPos, cPos)
			if score < threshold {
				continue
			}
			if score > bestScore {
				bestScore, bestIdx = score, ai
				continue
			}
			if score == bestScore && bestIdx >= 0 {
				cur, prev := candAdded[ai], candAdded[bestIdx]
				if absInt(cur-bi) < absInt(prev-bi) || (absInt(cur-bi) == absInt(prev-bi) && cur < prev) {
					bestIdx = ai
				}
			}
		}
		if bestIdx >= 0 {
			usedAdded[bestIdx] = true
			modified = append(modified, rowPair{b: bi, c: candAdded[bestIdx]})
		} else {
			removed = append(removed, bi)
		}
	}
	for ai, ci := range candAdded {
		if !usedAdded[ai] {
			added = append(added, ci)
		}
	}
	return removed, added, modified
}

func equalCells(bRow, cRow model.Row, bPos, cPos []int) int {
	n := 0
	for i := range bPos {
		if bRow[bPos[i]].Equal(cRow[cPos[i]]) {
			n++
		}
	}
	return n
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// cellDiffs extracts per-cell before/after for every modified pair,
// parallel across pairs.
func cellDiffs(
	baseline, current *model.Table,
	shared model.Schema, bPos, cPos []int,
	pairs []rowPair,
) []model.RowModification {
	if len(pairs) == 0 {
		return nil
	}
	mods := make([]model.RowModification, len(pairs))
	var wg sync.WaitGroup
	const chunk = 256
	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				pair := pairs[i]
				changes := make(map[string]model.CellChange)
				for s := range shared {
					before := baseline.Rows[pair.b][bPos[s]]
					after := current.Rows[pair.c][cPos[s]]
					if !before.Equal(after) {
						changes[shared[s].Name] = model.CellChange{Before: before, After: after}
					}
				}
				mods[i] = model.RowModification{
					RowIndex:     uint64(pair.b),
					CurrentIndex: uint64(pair.c),
					Changes:      changes,
				}
			}
		}(start, end)
	}
	wg.Wait()
	return mods
}

func rowAdditions(current *model.Table, indices []int) []model.RowAddition {
	var out []model.RowAddition
	for _, ci := range indices {
		out = append(out, model.RowAddition{
			RowIndex: uint64(ci),
			Data:     rowData(current.Schema, current.Rows[ci]),
		})
	}
	return out
}

func rowRemovals(baseline *model.Table, indices []int) []model.RowRemoval {
	var out []model.RowRemoval
	for _, bi := range indices {
		out = append(out, model.RowRemoval{
			RowIndex: uint64(bi),
			Data:     rowData(baseline.Schema, baseline.Rows[bi]),
		})
	}
	return out
}

func rowData(schema model.Schema, row model.Row) map[string]model.Value {
	data := make(map[string]model.Value, len(schema))
	for i, c := range schema {
		data[c.Name] = row[i]
	}
	return data
}
