package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kilupskalvis/tabdiff/internal/errs"
	"github.com/kilupskalvis/tabdiff/internal/hash"
	"github.com/kilupskalvis/tabdiff/internal/model"
)

// sqlSource executes an ordered SELECT from a .sql file against an
// SQLite database. The file names its database in a leading comment:
//
//	-- connection: path/to/data.db
//	SELECT id, name FROM users ORDER BY id;
//
// Arbitrary {NAME} tokens anywhere in the file are substituted from
// process environment variables before the query runs. The database is
// opened read-only; SQL sources refuse rollback.
type sqlSource struct {
	path      string
	dbPath    string
	query     string
	content   string
	batchSize int
}

var envToken = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func newSQLSource(path string, batchSize int) (*sqlSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "read %s", path).With("path", path)
	}

	content, err := substituteEnv(string(raw))
	if err != nil {
		return nil, errs.Wrap(errs.SourceUnreadable, err, "substitute environment in %s", path).With("path", path)
	}

	var dbPath string
	var queryLines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "--"))
			if rest, ok := strings.CutPrefix(comment, "connection:"); ok {
				dbPath = strings.TrimSpace(rest)
			}
			continue
		}
		if trimmed != "" {
			queryLines = append(queryLines, line)
		}
	}

	if dbPath == "" {
		return nil, errs.New(errs.SourceUnreadable,
			"%s: missing '-- connection: <database>' header", path).With("path", path)
	}
	query := strings.TrimSuffix(strings.TrimSpace(strings.Join(queryLines, "\n")), ";")
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return nil, errs.New(errs.SourceUnreadable, "%s: no SELECT query found", path).With("path", path)
	}

	return &sqlSource{
		path:      path,
		dbPath:    dbPath,
		query:     query,
		content:   content,
		batchSize: batchSize,
	}, nil
}

// substituteEnv replaces every {NAME} token with the value of the
// like-named environment variable, failing on unset names.
func substituteEnv(content string) (string, error) {
	var missing string
	out := envToken.ReplaceAllStringFunc(content, func(tok string) string {
		name := tok[1 : len(tok)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return tok
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("environment variable %q is not set", missing)
	}
	return out, nil
}

func (s *sqlSource) Kind() model.SourceKind { return model.SourceSQL }
func (s *sqlSource) Path() string           { return s.path }

func (s *sqlSource) Fingerprint() (string, error) {
	return hash.Bytes([]byte(s.content)), nil
}

func (s *sqlSource) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+s.dbPath+"?mode=ro")
	if err != nil {
		return nil, errs.Wrap(errs.SourceUnreadable, err, "open database %s", s.dbPath).With("path", s.dbPath)
	}
	return db, nil
}

func (s *sqlSource) Describe(ctx context.Context) (model.Schema, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM (%s) LIMIT 0", s.query))
	if err != nil {
		return nil, errs.Wrap(errs.SourceUnreadable, err, "describe query in %s", s.path).With("path", s.path)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errs.Wrap(errs.SourceUnreadable, err, "column types for %s", s.path).With("path", s.path)
	}
	if len(types) == 0 {
		return nil, errs.New(errs.SchemaEmpty, "query in %s yields no columns", s.path).With("path", s.path)
	}

	schema := make(model.Schema, len(types))
	for i, ct := range types {
		declared := ct.DatabaseTypeName()
		if declared == "" {
			declared = typeText
		}
		nullable, ok := ct.Nullable()
		if !ok {
			nullable = true
		}
		schema[i] = model.Column{Name: ct.Name(), Type: declared, Nullable: nullable}
	}
	return schema, nil
}

func (s *sqlSource) Scan(ctx context.Context) (RowStream, error) {
	schema, err := s.Describe(ctx)
	if err != nil {
		return nil, err
	}
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, s.query)
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.SourceUnreadable, err, "execute query in %s", s.path).With("path", s.path)
	}
	return &sqlStream{src: s, db: db, rows: rows, width: len(schema)}, nil
}

type sqlStream struct {
	src   *sqlSource
	db    *sql.DB
	rows  *sql.Rows
	width int
	done  bool
}

func (st *sqlStream) Next(ctx context.Context) ([]model.Row, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	if st.done {
		return nil, io.EOF
	}

	batch := make([]model.Row, 0, st.src.batchSize)
	cells := make([]sql.NullString, st.width)
	dest := make([]any, st.width)
	for i := range cells {
		dest[i] = &cells[i]
	}
	for len(batch) < st.src.batchSize {
		if !st.rows.Next() {
			st.done = true
			if err := st.rows.Err(); err != nil {
				return nil, errs.Wrap(errs.SourceUnreadable, err, "read query results from %s", st.src.path).With("path", st.src.path)
			}
			break
		}
		if err := st.rows.Scan(dest...); err != nil {
			return nil, errs.Wrap(errs.SourceUnreadable, err, "scan row from %s", st.src.path).With("path", st.src.path)
		}
		row := make(model.Row, st.width)
		for i, c := range cells {
			if c.Valid {
				row[i] = model.String(c.String)
			} else {
				row[i] = model.NullValue()
			}
		}
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (st *sqlStream) Close() error {
	st.rows.Close()
	return st.db.Close()
}
