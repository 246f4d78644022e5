package source

import (
	"strconv"
	"strings"

	"github.com/kilupskalvis/tabdiff/internal/model"
)

// Declared types used by the file adapters. SQL and Parquet sources
// report the types their engines declare instead.
const (
	typeText    = "TEXT"
	typeInteger = "INTEGER"
	typeFloat   = "FLOAT"
	typeBoolean = "BOOLEAN"
)

// inferType decides a declared type from the first non-empty value of
// a column: INTEGER, FLOAT, BOOLEAN, or TEXT.
func inferType(values []model.Value) string {
	for _, v := range values {
		if v.Null || v.Str == "" {
			continue
		}
		return inferValueType(v.Str)
	}
	return typeText
}

func inferValueType(s string) string {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return typeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return typeFloat
	}
	if strings.EqualFold(s, "true") || strings.EqualFold(s, "false") {
		return typeBoolean
	}
	return typeText
}

// inferSampleRows bounds how many rows Describe reads for inference.
const inferSampleRows = 1000
