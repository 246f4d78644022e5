package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

func testSchema() model.Schema {
	return model.Schema{
		{Name: "id", Type: "INTEGER", Nullable: false},
		{Name: "name", Type: "TEXT", Nullable: true},
	}
}

func TestSchemaFingerprintIsOrderSensitive(t *testing.T) {
	a := model.Schema{{Name: "x", Type: "TEXT", Nullable: true}, {Name: "y", Type: "TEXT", Nullable: true}}
	b := model.Schema{{Name: "y", Type: "TEXT", Nullable: true}, {Name: "x", Type: "TEXT", Nullable: true}}

	assert.Equal(t, Schema(a), Schema(a))
	assert.NotEqual(t, Schema(a), Schema(b))
}

func TestSchemaFingerprintCoversTypeAndNullability(t *testing.T) {
	base := model.Schema{{Name: "x", Type: "TEXT", Nullable: true}}
	typed := model.Schema{{Name: "x", Type: "INTEGER", Nullable: true}}
	notNull := model.Schema{{Name: "x", Type: "TEXT", Nullable: false}}

	assert.NotEqual(t, Schema(base), Schema(typed))
	assert.NotEqual(t, Schema(base), Schema(notNull))
}

func TestRowFingerprintDistinguishesNullFromEmpty(t *testing.T) {
	s := testSchema()
	withNull := model.Row{model.String("1"), model.NullValue()}
	withEmpty := model.Row{model.String("1"), model.String("")}

	assert.NotEqual(t, Row(s, withNull), Row(s, withEmpty))
	assert.Equal(t, Row(s, withNull), Row(s, withNull))
}

func TestRowFingerprintIsOrderSensitive(t *testing.T) {
	s := model.Schema{{Name: "a", Type: "TEXT"}, {Name: "b", Type: "TEXT"}}
	ab := model.Row{model.String("1"), model.String("2")}
	ba := model.Row{model.String("2"), model.String("1")}
	assert.NotEqual(t, Row(s, ab), Row(s, ba))
}

func TestRowFingerprintFramingResistsConcatenation(t *testing.T) {
	s := model.Schema{{Name: "a", Type: "TEXT"}, {Name: "b", Type: "TEXT"}}
	// Without length framing these two rows would hash identically.
	one := model.Row{model.String("ab"), model.String("c")}
	two := model.Row{model.String("a"), model.String("bc")}
	assert.NotEqual(t, Row(s, one), Row(s, two))
}

func TestRowSubsetUsesOnlySelectedColumns(t *testing.T) {
	s := model.Schema{{Name: "a", Type: "TEXT"}, {Name: "b", Type: "TEXT"}, {Name: "c", Type: "TEXT"}}
	subset := model.Schema{s[0], s[2]}
	positions := []int{0, 2}

	r1 := model.Row{model.String("1"), model.String("ignored"), model.String("3")}
	r2 := model.Row{model.String("1"), model.String("different"), model.String("3")}
	assert.Equal(t, RowSubset(subset, positions, r1), RowSubset(subset, positions, r2))
}

func TestAccumulatorMatchesSinglePass(t *testing.T) {
	s := testSchema()
	rows := []model.Row{
		{model.String("1"), model.String("alice")},
		{model.String("2"), model.NullValue()},
		{model.String("3"), model.String("")},
	}

	whole := Table(&model.Table{Schema: s, Rows: rows})

	acc := NewAccumulator(s)
	acc.AddBatch(rows[:1])
	acc.AddBatch(rows[1:])
	batched := acc.Finish()

	assert.Equal(t, whole.SchemaHash, batched.SchemaHash)
	assert.Equal(t, whole.RowCount, batched.RowCount)
	assert.Equal(t, whole.RowHashes, batched.RowHashes)
	for _, name := range []string{"id", "name"} {
		w, _ := whole.ColumnHashes.Get(name)
		b, _ := batched.ColumnHashes.Get(name)
		assert.Equal(t, w, b, "column %s", name)
	}
}

func TestColumnFingerprintIgnoresColumnName(t *testing.T) {
	rows := []model.Row{{model.String("10")}, {model.String("20")}}
	before := &model.Table{Schema: model.Schema{{Name: "score", Type: "TEXT"}}, Rows: rows}
	after := &model.Table{Schema: model.Schema{{Name: "rating", Type: "TEXT"}}, Rows: rows}

	h1, ok := Column(before, "score")
	require.True(t, ok)
	h2, ok := Column(after, "rating")
	require.True(t, ok)
	assert.Equal(t, h1, h2)

	_, ok = Column(before, "missing")
	assert.False(t, ok)
}

func TestColumnFingerprintIsOrderSensitive(t *testing.T) {
	s := model.Schema{{Name: "v", Type: "TEXT"}}
	forward := &model.Table{Schema: s, Rows: []model.Row{{model.String("a")}, {model.String("b")}}}
	backward := &model.Table{Schema: s, Rows: []model.Row{{model.String("b")}, {model.String("a")}}}

	h1, _ := Column(forward, "v")
	h2, _ := Column(backward, "v")
	assert.NotEqual(t, h1, h2)
}

func TestEmptyTable(t *testing.T) {
	s := testSchema()
	result := Table(&model.Table{Schema: s})
	assert.Equal(t, uint64(0), result.RowCount)
	assert.Empty(t, result.RowHashes)
	assert.Equal(t, 2, result.ColumnHashes.Len())
	assert.Equal(t, Schema(s), result.SchemaHash)
}

func TestHexEncoding(t *testing.T) {
	s := testSchema()
	h := Row(s, model.Row{model.String("1"), model.String("x")})
	assert.Len(t, h, 64) // 32-byte Blake3 digest, hex encoded
	assert.Regexp(t, "^[0-9a-f]+$", h)
}
