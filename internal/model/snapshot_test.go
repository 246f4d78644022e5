package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnHashesPreserveOrder(t *testing.T) {
	h := NewColumnHashes()
	h.Set("zebra", "11")
	h.Set("alpha", "22")
	h.Set("mid", "33")

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `{"zebra":"11","alpha":"22","mid":"33"}`, string(data))

	var back ColumnHashes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"zebra", "alpha", "mid"}, back.Names())
	v, ok := back.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "22", v)
}

func TestColumnHashesSetOverwrites(t *testing.T) {
	h := NewColumnHashes()
	h.Set("a", "1")
	h.Set("a", "2")
	assert.Equal(t, 1, h.Len())
	v, _ := h.Get("a")
	assert.Equal(t, "2", v)
}

func TestValueJSONRoundTrip(t *testing.T) {
	cases := []Value{
		NullValue(),
		String(""),
		String("hello"),
		String("with \"quotes\" and \n newline"),
	}
	for _, v := range cases {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		var back Value
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, v, back)
	}

	data, _ := json.Marshal(NullValue())
	assert.Equal(t, "null", string(data))
}

func TestValueEquality(t *testing.T) {
	assert.True(t, NullValue().Equal(NullValue()))
	assert.False(t, NullValue().Equal(String("")))
	assert.False(t, String("").Equal(NullValue()))
	assert.True(t, String("x").Equal(String("x")))
	assert.False(t, String("x").Equal(String("y")))
}

func TestSummaryJSONFieldNames(t *testing.T) {
	hashes := NewColumnHashes()
	hashes.Set("col", "aa")
	sum := Summary{
		FormatVersion:  FormatVersion,
		Name:           "v1",
		Columns:        hashes,
		Sampling:       SamplingInfo{Strategy: "full", RowsHashed: 2},
		SequenceNumber: 1,
		ParentSnapshot: "v0",
		DeltaFromParent: &DeltaInfo{
			ParentName:     "v0",
			CompressedSize: 42,
		},
	}

	data, err := json.Marshal(&sum)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, field := range []string{
		"format_version", "name", "created", "source", "source_path",
		"row_count", "column_count", "schema_hash", "columns",
		"sampling", "has_full_data", "parent_snapshot", "sequence_number",
		"can_reconstruct_parent", "delta_from_parent",
	} {
		assert.Contains(t, raw, field)
	}
	sampling := raw["sampling"].(map[string]any)
	assert.Contains(t, sampling, "strategy")
	assert.Contains(t, sampling, "rows_hashed")
	delta := raw["delta_from_parent"].(map[string]any)
	assert.Contains(t, delta, "parent_name")
	assert.Contains(t, delta, "compressed_size")
}

func TestSchemaHelpers(t *testing.T) {
	s := Schema{
		{Name: "a", Type: "TEXT"},
		{Name: "b", Type: "INTEGER"},
		{Name: "c", Type: "TEXT"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.Names())
	assert.Equal(t, 1, s.Index("b"))
	assert.Equal(t, -1, s.Index("z"))
	assert.True(t, s.Has("c"))

	other := Schema{{Name: "c"}, {Name: "a"}}
	shared := s.Intersection(other)
	assert.Equal(t, []string{"a", "c"}, shared.Names())
}
