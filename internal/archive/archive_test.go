package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

func testArchive() *Archive {
	schema := model.Schema{
		{Name: "id", Type: "INTEGER", Nullable: false},
		{Name: "note", Type: "TEXT", Nullable: true},
	}
	hashes := model.NewColumnHashes()
	hashes.Set("id", "aa")
	hashes.Set("note", "bb")
	return &Archive{
		Metadata: model.ArchiveMetadata{
			Summary: model.Summary{
				FormatVersion: model.FormatVersion,
				Name:          "v1",
				RowCount:      3,
				ColumnCount:   2,
				SchemaHash:    "cc",
				Columns:       hashes,
				HasFullData:   true,
			},
			ArchiveSchemaVersion: model.ArchiveSchemaVersion,
		},
		Schema:       schema,
		ColumnHashes: hashes,
		Rows: []model.Row{
			{model.String("1"), model.String("hello")},
			{model.String("2"), model.NullValue()},
			{model.String("3"), model.String("")},
		},
	}
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.tabdiff")

	require.NoError(t, Write(path, testArchive(), 0))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Metadata.Name)
	assert.Equal(t, uint64(3), got.Metadata.RowCount)
	assert.Equal(t, testArchive().Schema, got.Schema)
	require.Len(t, got.Rows, 3)

	// Null and empty string survive the parquet member distinctly.
	assert.Equal(t, model.String("hello"), got.Rows[0][1])
	assert.True(t, got.Rows[1][1].Null)
	assert.False(t, got.Rows[2][1].Null)
	assert.Equal(t, "", got.Rows[2][1].Str)
}

func TestDeltaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v2.tabdiff")

	a := testArchive()
	a.Metadata.Name = "v2"
	a.Metadata.ParentSnapshot = "v1"
	a.Metadata.SequenceNumber = 1
	a.Metadata.DeltaFromParent = &model.DeltaInfo{ParentName: "v1"}
	a.Delta = &model.Delta{
		ParentName: "v1",
		RowChanges: model.RowChanges{
			Added: []model.RowAddition{{
				RowIndex: 2,
				Data:     map[string]model.Value{"id": model.String("3"), "note": model.NullValue()},
			}},
		},
		ForwardOps:  []model.RollbackOp{model.InsertRowOp(2, map[string]model.Value{"id": model.String("3")})},
		RollbackOps: []model.RollbackOp{model.RemoveRowOp(2)},
	}

	require.NoError(t, Write(path, a, 0))
	assert.Greater(t, a.DeltaSize, int64(0))
	assert.Equal(t, a.DeltaSize, a.Metadata.DeltaFromParent.CompressedSize)

	got, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, got.Delta)
	assert.Equal(t, "v1", got.Delta.ParentName)
	require.Len(t, got.Delta.RowChanges.Added, 1)
	assert.True(t, got.Delta.RowChanges.Added[0].Data["note"].Null)
	require.Len(t, got.Delta.RollbackOps, 1)
	assert.Equal(t, model.OpRemoveRow, got.Delta.RollbackOps[0].Type)
	assert.Equal(t, a.DeltaSize, got.DeltaSize)
}

func TestStrippedArchiveKeepsDelta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.tabdiff")

	a := testArchive()
	a.Metadata.HasFullData = false
	a.Rows = nil
	a.Delta = &model.Delta{ParentName: "v0"}

	require.NoError(t, Write(path, a, 0))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Nil(t, got.Rows)
	require.NotNil(t, got.Delta)
}

func TestEmptyRowSetIsNotMissingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tabdiff")

	a := testArchive()
	a.Rows = []model.Row{}
	a.Metadata.RowCount = 0

	require.NoError(t, Write(path, a, 0))
	got, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, got.Rows)
	assert.Empty(t, got.Rows)
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tabdiff")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.ArchiveCorrupt))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.tabdiff"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.ArchiveCorrupt))
}

func TestStagedWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v1.tabdiff")
	require.NoError(t, Write(path, testArchive(), 0))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v1.tabdiff", entries[0].Name())
}
