package rollback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

func sampleTable() *model.Table {
	return &model.Table{
		Schema: model.Schema{
			{Name: "id", Type: "INTEGER", Nullable: false},
			{Name: "name", Type: "TEXT", Nullable: true},
		},
		Rows: []model.Row{
			{model.String("1"), model.String("alice")},
			{model.String("2"), model.String("bob")},
			{model.String("3"), model.String("carol")},
		},
	}
}

func TestRemoveAndInsertRow(t *testing.T) {
	tbl := sampleTable()

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{model.RemoveRowOp(1)}))
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, model.String("3"), tbl.Rows[1][0])

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.InsertRowOp(1, map[string]model.Value{"id": model.String("2"), "name": model.String("bob")}),
	}))
	assert.Equal(t, sampleTable().Rows, tbl.Rows)
}

func TestInsertRowFillsMissingColumnsWithNull(t *testing.T) {
	tbl := sampleTable()
	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.InsertRowOp(3, map[string]model.Value{"id": model.String("4")}),
	}))
	assert.True(t, tbl.Rows[3][1].Null)
}

func TestUpdateCell(t *testing.T) {
	tbl := sampleTable()
	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.UpdateCellOp(0, "name", model.NullValue()),
	}))
	assert.True(t, tbl.Rows[0][1].Null)

	err := ApplyOps(tbl, []model.RollbackOp{model.UpdateCellOp(0, "missing", model.String("x"))})
	assert.Error(t, err)
}

func TestColumnOperations(t *testing.T) {
	tbl := sampleTable()

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.AddColumnOp("city", "TEXT", 1, true, model.NullValue()),
	}))
	assert.Equal(t, []string{"id", "city", "name"}, tbl.Schema.Names())
	assert.True(t, tbl.Rows[0][1].Null)
	assert.Equal(t, model.String("alice"), tbl.Rows[0][2])

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.RenameColumnOp("city", "town"),
	}))
	assert.Equal(t, []string{"id", "town", "name"}, tbl.Schema.Names())

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.ReorderColumnsOp([]string{"name", "id", "town"}),
	}))
	assert.Equal(t, []string{"name", "id", "town"}, tbl.Schema.Names())
	assert.Equal(t, model.String("alice"), tbl.Rows[0][0])
	assert.Equal(t, model.String("1"), tbl.Rows[0][1])

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.ChangeTypeOp("id", "TEXT"),
	}))
	assert.Equal(t, "TEXT", tbl.Schema[tbl.Schema.Index("id")].Type)

	require.NoError(t, ApplyOps(tbl, []model.RollbackOp{
		model.RemoveColumnOp("town"),
	}))
	assert.Equal(t, []string{"name", "id"}, tbl.Schema.Names())
	require.Len(t, tbl.Rows[0], 2)
}

func TestIndexBoundsAreChecked(t *testing.T) {
	tbl := sampleTable()
	assert.Error(t, ApplyOps(tbl, []model.RollbackOp{model.RemoveRowOp(99)}))
	assert.Error(t, ApplyOps(tbl, []model.RollbackOp{
		model.InsertRowOp(99, map[string]model.Value{}),
	}))
	assert.Error(t, ApplyOps(tbl, []model.RollbackOp{
		model.ReorderColumnsOp([]string{"id"}),
	}))
	assert.Error(t, ApplyOps(tbl, []model.RollbackOp{
		model.RenameColumnOp("id", "name"),
	}))
}
