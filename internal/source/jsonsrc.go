package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// jsonSource reads .json (array of objects) and .jsonl (one object per
// line) files. Column order is the key order of the first object;
// later objects may omit keys (null) or add keys (ignored). Numeric
// and boolean literals keep their exact source text.
type jsonSource struct {
	path      string
	lines     bool
	batchSize int
}

func newJSONSource(path string, lines bool, batchSize int) *jsonSource {
	return &jsonSource{path: path, lines: lines, batchSize: batchSize}
}

func (s *jsonSource) Kind() model.SourceKind { return model.SourceFile }
func (s *jsonSource) Path() string           { return s.path }

func (s *jsonSource) Fingerprint() (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", errs.Wrap(errs.IOError, err, "open %s", s.path).With("path", s.path)
	}
	defer f.Close()
	return hash.Reader(f)
}

// jsonField is one key/value pair with source order preserved.
type jsonField struct {
	key string
	raw json.RawMessage
}

// decodeOrderedObject consumes one JSON object from dec, keeping the
// key order encoding/json's map decoding would lose.
func decodeOrderedObject(dec *json.Decoder) ([]jsonField, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var fields []jsonField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("non-string key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, jsonField{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// rawValue converts a raw JSON value to a cell. Strings are unquoted;
// every other literal keeps its exact source text.
func rawValue(raw json.RawMessage) (model.Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return model.NullValue(), nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return model.Value{}, err
		}
		return model.String(s), nil
	}
	return model.String(string(trimmed)), nil
}

func rawType(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return typeText
	}
	switch trimmed[0] {
	case '"', '{', '[':
		return typeText
	case 't', 'f':
		return typeBoolean
	default:
		if bytes.ContainsAny(trimmed, ".eE") {
			return typeFloat
		}
		return typeInteger
	}
}

// objectReader yields ordered objects from either container format.
type objectReader struct {
	dec   *json.Decoder
	lines bool
	// array mode consumed the opening bracket
	started bool
}

func (s *jsonSource) openReader() (*os.File, *objectReader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IOError, err, "open %s", s.path).With("path", s.path)
	}
	return f, &objectReader{dec: json.NewDecoder(f), lines: s.lines}, nil
}

// next returns the fields of the next object, or io.EOF.
func (r *objectReader) next() ([]jsonField, error) {
	if r.lines {
		if !r.dec.More() {
			return nil, io.EOF
		}
		return decodeOrderedObject(r.dec)
	}
	if !r.started {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, fmt.Errorf("expected array of objects, got %v", tok)
		}
		r.started = true
	}
	if !r.dec.More() {
		return nil, io.EOF
	}
	return decodeOrderedObject(r.dec)
}

func (s *jsonSource) unreadable(err error) error {
	return errs.Wrap(errs.SourceUnreadable, err, "parse %s", s.path).With("path", s.path)
}

func (s *jsonSource) Describe(ctx context.Context) (model.Schema, error) {
	f, r, err := s.openReader()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	first, err := r.next()
	if err == io.EOF {
		return nil, errs.New(errs.SchemaEmpty, "no rows in %s: schema cannot be derived", s.path).With("path", s.path)
	}
	if err != nil {
		return nil, s.unreadable(err)
	}
	if len(first) == 0 {
		return nil, errs.New(errs.SchemaEmpty, "first object in %s has no keys", s.path).With("path", s.path)
	}

	types := make([]string, len(first))
	index := make(map[string]int, len(first))
	for i, field := range first {
		index[field.key] = i
		if !isRawNull(field.raw) {
			types[i] = rawType(field.raw)
		}
	}

	// Later objects settle types for columns whose first value was null.
	for sampled := 1; sampled < inferSampleRows; sampled++ {
		obj, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, s.unreadable(err)
		}
		for _, field := range obj {
			if i, ok := index[field.key]; ok && types[i] == "" && !isRawNull(field.raw) {
				types[i] = rawType(field.raw)
			}
		}
	}

	schema := make(model.Schema, len(first))
	for i, field := range first {
		t := types[i]
		if t == "" {
			t = typeText
		}
		schema[i] = model.Column{Name: field.key, Type: t, Nullable: true}
	}
	return schema, nil
}

func (s *jsonSource) Scan(ctx context.Context) (RowStream, error) {
	schema, err := s.Describe(ctx)
	if err != nil {
		return nil, err
	}
	f, r, err := s.openReader()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(schema))
	for i, c := range schema {
		index[c.Name] = i
	}
	return &jsonStream{src: s, file: f, r: r, index: index, width: len(schema)}, nil
}

type jsonStream struct {
	src   *jsonSource
	file  *os.File
	r     *objectReader
	index map[string]int
	width int
	done  bool
}

func (st *jsonStream) Next(ctx context.Context) ([]model.Row, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if st.done {
		return nil, io.EOF
	}

	batch := make([]model.Row, 0, st.src.batchSize)
	for len(batch) < st.src.batchSize {
		obj, err := st.r.next()
		if err == io.EOF {
			st.done = true
			break
		}
		if err != nil {
			return nil, st.src.unreadable(err)
		}
		row := make(model.Row, st.width)
		for i := range row {
			row[i] = model.NullValue()
		}
		for _, field := range obj {
			i, ok := st.index[field.key]
			if !ok {
				continue
			}
			v, err := rawValue(field.raw)
			if err != nil {
				return nil, st.src.unreadable(err)
			}
			row[i] = v
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (st *jsonStream) Close() error { return st.file.Close() }

func isRawNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
