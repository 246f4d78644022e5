package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// delimitedSource reads CSV and TSV files. The first record is the
// header; every cell is a non-null string (delimited formats cannot
// express null).
type delimitedSource struct {
	path      string
	comma     rune
	batchSize int
}

func newDelimitedSource(path string, comma rune, batchSize int) *delimitedSource {
	return &delimitedSource{path: path, comma: comma, batchSize: batchSize}
}

func (s *delimitedSource) Kind() model.SourceKind { return model.SourceFile }
func (s *delimitedSource) Path() string           { return s.path }

func (s *delimitedSource) Fingerprint() (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", errs.Wrap(errs.IOError, err, "open %s", s.path).With("path", s.path)
	}
	defer f.Close()
	return hash.Reader(f)
}

func (s *delimitedSource) reader() (*os.File, *csv.Reader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.IOError, err, "open %s", s.path).With("path", s.path)
	}
	r := csv.NewReader(f)
	r.Comma = s.comma
	r.FieldsPerRecord = -1
	return f, r, nil
}

func (s *delimitedSource) Describe(ctx context.Context) (model.Schema, error) {
	f, r, err := s.reader()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err == io.EOF {
		return nil, errs.New(errs.SchemaEmpty, "no header row in %s", s.path).With("path", s.path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.SourceUnreadable, err, "read header of %s", s.path).With("path", s.path)
	}
	if len(header) == 0 {
		return nil, errs.New(errs.SchemaEmpty, "empty header in %s", s.path).With("path", s.path)
	}

	// Sample rows per column for type inference.
	samples := make([][]model.Value, len(header))
	for i := 0; i < inferSampleRows; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.SourceUnreadable, err, "read %s", s.path).With("path", s.path)
		}
		for c := range header {
			if c < len(rec) {
				samples[c] = append(samples[c], model.String(rec[c]))
			}
		}
	}

	schema := make(model.Schema, len(header))
	for i, name := range header {
		schema[i] = model.Column{Name: name, Type: inferType(samples[i]), Nullable: true}
	}
	return schema, nil
}

func (s *delimitedSource) Scan(ctx context.Context) (RowStream, error) {
	f, r, err := s.reader()
	if err != nil {
		return nil, err
	}
	header, err := r.Read()
	if err == io.EOF {
		f.Close()
		return nil, errs.New(errs.SchemaEmpty, "no header row in %s", s.path).With("path", s.path)
	}
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.SourceUnreadable, err, "read header of %s", s.path).With("path", s.path)
	}
	return &delimitedStream{
		src:     s,
		file:    f,
		r:       r,
		columns: len(header),
	}, nil
}

type delimitedStream struct {
	src     *delimitedSource
	file    *os.File
	r       *csv.Reader
	columns int
	done    bool
}

func (st *delimitedStream) Next(ctx context.Context) ([]model.Row, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if st.done {
		return nil, io.EOF
	}

	batch := make([]model.Row, 0, st.src.batchSize)
	for len(batch) < st.src.batchSize {
		rec, err := st.r.Read()
		if err == io.EOF {
			st.done = true
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.SourceUnreadable, err, "read %s", st.src.path).With("path", st.src.path)
		}
		row := make(model.Row, st.columns)
		for c := 0; c < st.columns; c++ {
			if c < len(rec) {
				row[c] = model.String(rec[c])
			} else {
				row[c] = model.String("")
			}
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (st *delimitedStream) Close() error { return st.file.Close() }
