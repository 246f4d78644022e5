package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/tabdiff/internal/detect"
	"github.com/kilupskalvis/tabdiff/internal/model"
	"github.com/kilupskalvis/tabdiff/internal/rollback"
)

func schema(names ...string) model.Schema {
	s := make(model.Schema, len(names))
	for i, n := range names {
		s[i] = model.Column{Name: n, Type: "TEXT", Nullable: true}
	}
	return s
}

func table(s model.Schema, rows ...[]string) *model.Table {
	t := &model.Table{Schema: s}
	for _, r := range rows {
		row := make(model.Row, len(r))
		for i, v := range r {
			row[i] = model.String(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func TestCellEdit(t *testing.T) {
	s := schema("id", "rating")
	baseline := table(s, []string{"1", "4.5"}, []string{"2", "3.8"})
	current := table(s, []string{"1", "4.7"}, []string{"2", "3.8"})

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Modified, 1)
	mod := cs.RowChanges.Modified[0]
	assert.Equal(t, uint64(0), mod.RowIndex)
	require.Contains(t, mod.Changes, "rating")
	assert.Equal(t, model.String("4.5"), mod.Changes["rating"].Before)
	assert.Equal(t, model.String("4.7"), mod.Changes["rating"].After)
	assert.Empty(t, cs.RowChanges.Added)
	assert.Empty(t, cs.RowChanges.Removed)

	require.Len(t, cs.RollbackOps, 1)
	op := cs.RollbackOps[0]
	assert.Equal(t, model.OpUpdateCell, op.Type)
	assert.Equal(t, uint64(0), *op.Params.RowIndex)
	assert.Equal(t, "rating", op.Params.Column)
	assert.Equal(t, model.String("4.5"), *op.Params.Value)
}

func TestRowAppend(t *testing.T) {
	s := schema("col")
	baseline := table(s, []string{"a"}, []string{"b"})
	current := table(s, []string{"a"}, []string{"b"}, []string{"c"})

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Added, 1)
	assert.Equal(t, uint64(2), cs.RowChanges.Added[0].RowIndex)
	assert.Equal(t, model.String("c"), cs.RowChanges.Added[0].Data["col"])

	require.Len(t, cs.RollbackOps, 1)
	assert.Equal(t, model.OpRemoveRow, cs.RollbackOps[0].Type)
	assert.Equal(t, uint64(2), *cs.RollbackOps[0].Params.RowIndex)
}

func TestRowDelete(t *testing.T) {
	s := schema("col")
	baseline := table(s, []string{"a"}, []string{"b"}, []string{"c"})
	current := table(s, []string{"a"}, []string{"c"})

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Removed, 1)
	assert.Equal(t, uint64(1), cs.RowChanges.Removed[0].RowIndex)
	assert.Equal(t, model.String("b"), cs.RowChanges.Removed[0].Data["col"])
	assert.Empty(t, cs.RowChanges.Added)
	assert.Empty(t, cs.RowChanges.Modified)

	require.Len(t, cs.RollbackOps, 1)
	op := cs.RollbackOps[0]
	assert.Equal(t, model.OpInsertRow, op.Type)
	assert.Equal(t, uint64(1), *op.Params.RowIndex)
	assert.Equal(t, model.String("b"), op.Params.Values["col"])
}

func TestColumnRename(t *testing.T) {
	baseline := table(schema("id", "score"), []string{"1", "10"}, []string{"2", "20"})
	current := table(schema("id", "rating"), []string{"1", "10"}, []string{"2", "20"})

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.SchemaChanges.Renamed, 1)
	assert.Equal(t, "score", cs.SchemaChanges.Renamed[0].From)
	assert.Equal(t, "rating", cs.SchemaChanges.Renamed[0].To)
	assert.Empty(t, cs.SchemaChanges.Added)
	assert.Empty(t, cs.SchemaChanges.Removed)
	assert.False(t, cs.RowChanges.HasChanges())

	require.NotEmpty(t, cs.RollbackOps)
	first := cs.RollbackOps[0]
	assert.Equal(t, model.OpRenameColumn, first.Type)
	assert.Equal(t, "rating", first.Params.From)
	assert.Equal(t, "score", first.Params.To)
}

func TestDuplicateRowsPopFIFO(t *testing.T) {
	s := schema("col")
	baseline := table(s, []string{"x"}, []string{"x"}, []string{"y"})
	current := table(s, []string{"x"}, []string{"y"}, []string{"y"})

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	// One x and one y pair; the residuals sit at different indices and
	// share no cells, so the similarity pass leaves them apart.
	require.Len(t, cs.RowChanges.Removed, 1)
	assert.Equal(t, uint64(1), cs.RowChanges.Removed[0].RowIndex)
	require.Len(t, cs.RowChanges.Added, 1)
	assert.Equal(t, uint64(2), cs.RowChanges.Added[0].RowIndex)
	assert.Empty(t, cs.RowChanges.Modified)
}

func TestDetectIsIdempotent(t *testing.T) {
	s := schema("a", "b", "c")
	tbl := table(s,
		[]string{"1", "x", ""},
		[]string{"2", "y", "z"},
		[]string{"2", "y", "z"},
	)

	cs, err := detect.Changes(tbl, tbl.Clone())
	require.NoError(t, err)
	assert.True(t, cs.Empty())
	assert.Empty(t, cs.RollbackOps)
}

func TestEmptyAndSingleRowTables(t *testing.T) {
	s := schema("col")

	cs, err := detect.Changes(table(s), table(s))
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	cs, err = detect.Changes(table(s), table(s, []string{"only"}))
	require.NoError(t, err)
	require.Len(t, cs.RowChanges.Added, 1)

	cs, err = detect.Changes(table(s, []string{"only"}), table(s))
	require.NoError(t, err)
	require.Len(t, cs.RowChanges.Removed, 1)
}

func TestNullDistinctFromEmpty(t *testing.T) {
	s := schema("col")
	baseline := &model.Table{Schema: s, Rows: []model.Row{{model.NullValue()}}}
	current := &model.Table{Schema: s, Rows: []model.Row{{model.String("")}}}

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	// Same index, so positional pairing reports an in-place edit.
	require.Len(t, cs.RowChanges.Modified, 1)
	change := cs.RowChanges.Modified[0].Changes["col"]
	assert.True(t, change.Before.Null)
	assert.False(t, change.After.Null)
	assert.Equal(t, "", change.After.Str)
}

func TestWhitespaceIsSignificant(t *testing.T) {
	s := schema("n")
	cs, err := detect.Changes(table(s, []string{"42"}), table(s, []string{" 42"}))
	require.NoError(t, err)
	require.Len(t, cs.RowChanges.Modified, 1)
}

func TestUnicodeComparedBytewise(t *testing.T) {
	s := schema("text")
	// Combining sequence vs precomposed form differ as bytes.
	cs, err := detect.Changes(table(s, []string{"é"}), table(s, []string{"é"}))
	require.NoError(t, err)
	require.Len(t, cs.RowChanges.Modified, 1)

	cs, err = detect.Changes(table(s, []string{"a​b"}), table(s, []string{"a​b"}))
	require.NoError(t, err)
	assert.True(t, cs.Empty())
}

func TestSimilarityPassPairsNearbyRows(t *testing.T) {
	s := schema("id", "name", "city", "age")
	baseline := table(s,
		[]string{"1", "alice", "york", "30"},
		[]string{"2", "bob", "leeds", "25"},
	)
	// Row 1 edited in place but also shifted by an insertion above it.
	current := table(s,
		[]string{"0", "zara", "bath", "19"},
		[]string{"1", "alice", "york", "30"},
		[]string{"2", "bob", "leeds", "26"},
	)

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Added, 1)
	assert.Equal(t, uint64(0), cs.RowChanges.Added[0].RowIndex)
	require.Len(t, cs.RowChanges.Modified, 1)
	mod := cs.RowChanges.Modified[0]
	assert.Equal(t, uint64(1), mod.RowIndex)
	assert.Equal(t, uint64(2), mod.CurrentIndex)
	require.Contains(t, mod.Changes, "age")
	assert.Empty(t, cs.RowChanges.Removed)
}

func TestSchemaDiffAddRemoveTypeChange(t *testing.T) {
	baseline := &model.Table{
		Schema: model.Schema{
			{Name: "id", Type: "INTEGER", Nullable: false},
			{Name: "name", Type: "TEXT", Nullable: true},
			{Name: "legacy", Type: "TEXT", Nullable: true},
		},
		Rows: []model.Row{{model.String("1"), model.String("n"), model.String("old")}},
	}
	current := &model.Table{
		Schema: model.Schema{
			{Name: "id", Type: "INTEGER", Nullable: false},
			{Name: "name", Type: "VARCHAR", Nullable: true},
			{Name: "email", Type: "TEXT", Nullable: true},
			{Name: "extra", Type: "TEXT", Nullable: true},
		},
		Rows: []model.Row{{model.String("1"), model.String("n"), model.String("e"), model.String("x")}},
	}

	cs, err := detect.Changes(baseline, current)
	require.NoError(t, err)

	sc := cs.SchemaChanges
	// One removed vs two added: the rename heuristic stays off.
	require.Len(t, sc.Added, 2)
	require.Len(t, sc.Removed, 1)
	assert.Equal(t, "legacy", sc.Removed[0].Name)
	assert.Empty(t, sc.Renamed)
	require.Len(t, sc.TypeChanges, 1)
	assert.Equal(t, "name", sc.TypeChanges[0].Name)
	assert.Equal(t, "TEXT", sc.TypeChanges[0].Before)
	assert.Equal(t, "VARCHAR", sc.TypeChanges[0].After)
}

// Rollback ops applied to the current table must reproduce the
// baseline exactly, including restored column data.
func TestRollbackOpsInvertChanges(t *testing.T) {
	cases := []struct {
		name     string
		baseline *model.Table
		current  *model.Table
	}{
		{
			name:     "cell edits",
			baseline: table(schema("a", "b"), []string{"1", "x"}, []string{"2", "y"}),
			current:  table(schema("a", "b"), []string{"1", "X"}, []string{"2", "y"}),
		},
		{
			name:     "adds and removes",
			baseline: table(schema("a"), []string{"1"}, []string{"2"}, []string{"3"}),
			current:  table(schema("a"), []string{"2"}, []string{"9"}),
		},
		{
			name:     "column removed with data",
			baseline: table(schema("id", "note"), []string{"1", "keep"}, []string{"2", ""}),
			current:  table(schema("id"), []string{"1"}, []string{"2"}),
		},
		{
			name:     "column added",
			baseline: table(schema("id"), []string{"1"}),
			current:  table(schema("id", "new"), []string{"1", "v"}),
		},
		{
			name:     "rename",
			baseline: table(schema("id", "score"), []string{"1", "10"}),
			current:  table(schema("id", "rating"), []string{"1", "10"}),
		},
		{
			name:     "reorder",
			baseline: table(schema("a", "b"), []string{"1", "2"}),
			current:  table(schema("b", "a"), []string{"2", "1"}),
		},
		{
			name: "mixed rows and columns",
			baseline: table(schema("id", "name", "city"),
				[]string{"1", "alice", "york"},
				[]string{"2", "bob", "leeds"},
				[]string{"3", "carol", "bath"},
			),
			current: table(schema("id", "name"),
				[]string{"1", "alice"},
				[]string{"3", "carla"},
				[]string{"4", "dan"},
			),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs, err := detect.Changes(tc.baseline, tc.current)
			require.NoError(t, err)

			restored := tc.current.Clone()
			require.NoError(t, rollback.ApplyOps(restored, cs.RollbackOps))

			assert.Equal(t, tc.baseline.Schema, restored.Schema)
			assert.Equal(t, tc.baseline.Rows, restored.Rows)

			// And the round trip closes: nothing left to detect.
			again, err := detect.Changes(tc.baseline, restored)
			require.NoError(t, err)
			assert.True(t, again.Empty(), "change set not empty after rollback")
		})
	}
}

func TestEmissionOrderIsDeterministic(t *testing.T) {
	baseline := table(schema("id", "v"),
		[]string{"1", "a"}, []string{"2", "b"}, []string{"3", "c"}, []string{"4", "d"})
	current := table(schema("id", "v"),
		[]string{"1", "A"}, []string{"3", "c"}, []string{"5", "e"}, []string{"6", "f"})

	first, err := detect.Changes(baseline, current)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		next, err := detect.Changes(baseline, current)
		require.NoError(t, err)
		assert.Equal(t, first.RollbackOps, next.RollbackOps)
		assert.Equal(t, first.RowChanges, next.RowChanges)
	}
}
