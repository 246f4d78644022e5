package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// parquetSource reads .parquet files. The file's own schema supplies
// column order, declared types, and nullability.
type parquetSource struct {
	path      string
	batchSize int
}

func newParquetSource(path string, batchSize int) *parquetSource {
	return &parquetSource{path: path, batchSize: batchSize}
}

func (s *parquetSource) Kind() model.SourceKind { return model.SourceFile }
func (s *parquetSource) Path() string           { return s.path }

func (s *parquetSource) Fingerprint() (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", errs.Wrap(errs.IOError, err, "open %s", s.path).With("path", s.path)
	}
	defer f.Close()
	return hash.Reader(f)
}

func (s *parquetSource) openFile() (*os.File, *parquet.File, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IOError, err, "open %s", s.path).With("path", s.path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errs.Wrap(errs.IOError, err, "stat %s", s.path).With("path", s.path)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, errs.Wrap(errs.SourceUnreadable, err, "parse parquet %s", s.path).With("path", s.path)
	}
	return f, pf, nil
}

func (s *parquetSource) Describe(ctx context.Context) (model.Schema, error) {
	f, pf, err := s.openFile()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := pf.Schema().Fields()
	if len(fields) == 0 {
		return nil, errs.New(errs.SchemaEmpty, "parquet file %s has no columns", s.path).With("path", s.path)
	}
	schema := make(model.Schema, len(fields))
	for i, field := range fields {
		schema[i] = model.Column{
			Name:     field.Name(),
			Type:     parquetTypeName(field),
			Nullable: field.Optional(),
		}
	}
	return schema, nil
}

func parquetTypeName(field parquet.Field) string {
	if field.Leaf() {
		return field.Type().String()
	}
	return "GROUP"
}

func (s *parquetSource) Scan(ctx context.Context) (RowStream, error) {
	schema, err := s.Describe(ctx)
	if err != nil {
		return nil, err
	}
	f, pf, err := s.openFile()
	if err != nil {
		return nil, err
	}
	reader := parquet.NewGenericReader[map[string]any](f, pf.Schema())
	return &parquetStream{src: s, file: f, reader: reader, schema: schema}, nil
}

type parquetStream struct {
	src    *parquetSource
	file   *os.File
	reader *parquet.GenericReader[map[string]any]
	schema model.Schema
	done   bool
}

func (st *parquetStream) Next(ctx context.Context) ([]model.Row, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if st.done {
		return nil, io.EOF
	}

	buf := make([]map[string]any, st.src.batchSize)
	for i := range buf {
		buf[i] = make(map[string]any)
	}
	n, err := st.reader.Read(buf)
	if err == io.EOF {
		st.done = true
	} else if err != nil {
		return nil, errs.Wrap(errs.SourceUnreadable, err, "read parquet %s", st.src.path).With("path", st.src.path)
	}
	if n == 0 {
		return nil, io.EOF
	}

	batch := make([]model.Row, n)
	for i := 0; i < n; i++ {
		row := make(model.Row, len(st.schema))
		for c, col := range st.schema {
			raw, ok := buf[i][col.Name]
			if !ok {
				row[c] = model.NullValue()
				continue
			}
			row[c] = stringifyParquet(raw)
		}
		batch[i] = row
	}
	return batch, nil
}

func (st *parquetStream) Close() error {
	st.reader.Close()
	return st.file.Close()
}

func stringifyParquet(v any) model.Value {
	switch x := v.(type) {
	case nil:
		return model.NullValue()
	case string:
		return model.String(x)
	case []byte:
		return model.String(string(x))
	case bool:
		return model.String(strconv.FormatBool(x))
	case int32:
		return model.String(strconv.FormatInt(int64(x), 10))
	case int64:
		return model.String(strconv.FormatInt(x, 10))
	case int:
		return model.String(strconv.Itoa(x))
	case float32:
		return model.String(strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return model.String(strconv.FormatFloat(x, 'g', -1, 64))
	default:
		return model.String(fmt.Sprintf("%v", x))
	}
}
