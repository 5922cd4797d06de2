package sqlio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type ReaderOptions struct {
	Driver string // sqlite (default), postgres, mysql, sqlserver
	// Query selects the rows to read; when empty every row of Table is read.
	Query     string
	Table     string
	BatchSize int
	// DB replaces opening the location as a DSN. The caller keeps ownership.
	DB *sql.DB
}

// Source streams a query result through the driver cursor. The location is
// the DSN (a file path for sqlite).
type Source struct {
	Options ReaderOptions
}

func (s Source) Name() string { return "sql" }

func (s Source) Open(ctx context.Context, location string) (etl.Reader, error) {
	d, err := lookup(s.Options.Driver)
	if err != nil {
		return nil, err
	}
	query := s.Options.Query
	if query == "" {
		if s.Options.Table == "" {
			return nil, errors.New("sql source needs a query or a table")
		}
		query = "SELECT * FROM " + d.quote(s.Options.Table)
	}
	db, owned := s.Options.DB, false
	if db == nil {
		if d.driver == "sqlite" {
			path, _, _ := strings.Cut(strings.TrimPrefix(location, "file:"), "?")
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				return nil, &etl.SourceNotFoundError{Location: location, Err: err}
			}
		}
		if db, err = open(d, location); err != nil {
			return nil, err
		}
		owned = true
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		if owned {
			_ = db.Close()
		}
		return nil, fmt.Errorf("query: %w", err)
	}
	r := &Reader{db: db, ownsDB: owned, rows: rows, size: s.Options.BatchSize}
	if r.size <= 0 {
		r.size = etl.DefaultBatchSize
	}
	if err := r.inferSchema(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Reader holds an open cursor between batches.
type Reader struct {
	db     *sql.DB
	ownsDB bool
	rows   *sql.Rows
	size   int
	schema etl.Schema
	buf    [][]any
	batch  int
	done   bool
	closed bool
}

func (r *Reader) Schema() etl.Schema { return r.schema }

func (r *Reader) scan() ([]any, error) {
	if r.done || !r.rows.Next() {
		r.done = true
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	vals := make([]any, len(r.schema.Columns))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func (r *Reader) inferSchema(ctx context.Context) error {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	r.schema = etl.Schema{Columns: make([]etl.ColumnSchema, len(types))}
	for i, ct := range types {
		nullable, ok := ct.Nullable()
		r.schema.Columns[i] = etl.ColumnSchema{Name: ct.Name(), Nullable: nullable || !ok}
	}
	for len(r.buf) < r.size {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := r.scan()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		r.buf = append(r.buf, vals)
	}
	for i, ct := range types {
		if k, ok := kindOf(ct.DatabaseTypeName()); ok {
			r.schema.Columns[i].Type = k
			continue
		}
		k := etl.KindInvalid
		for _, row := range r.buf {
			vk := kindOfValue(row[i])
			switch {
			case vk == etl.KindInvalid:
			case k == etl.KindInvalid:
				k = vk
			case k == etl.KindInt && vk == etl.KindFloat:
				k = etl.KindFloat
			case k != vk && !(k == etl.KindFloat && vk == etl.KindInt):
				k = etl.KindString
			}
		}
		if k == etl.KindInvalid {
			k = etl.KindString
		}
		r.schema.Columns[i].Type = k
	}
	return nil
}

func (r *Reader) Next(ctx context.Context) (*etl.Batch, error) {
	if r.closed {
		return nil, io.EOF
	}
	b := etl.NewBatch(r.schema)
	for len(r.buf) > 0 && b.Rows() < r.size {
		vals := r.buf[0]
		r.buf = r.buf[1:]
		if err := r.appendRow(b, vals); err != nil {
			return nil, err
		}
	}
	for b.Rows() < r.size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vals, err := r.scan()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sql batch %d: %w", r.batch, err)
		}
		if err := r.appendRow(b, vals); err != nil {
			return nil, err
		}
	}
	if b.Rows() == 0 {
		_ = r.Close()
		return nil, io.EOF
	}
	r.batch++
	return b, nil
}

func (r *Reader) appendRow(b *etl.Batch, vals []any) error {
	row := b.Rows()
	b.AppendNullRow()
	for i, cs := range r.schema.Columns {
		v, err := convert(cs.Type, vals[i])
		if err == nil {
			err = b.SetCell(row, cs.Name, v)
		}
		if err != nil {
			return &etl.SchemaInconsistencyError{Batch: r.batch, Row: row, Column: cs.Name, Reason: err.Error()}
		}
	}
	return nil
}

// Close releases the cursor and, when opened here, the database handle.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	err := r.rows.Close()
	if r.ownsDB {
		if cerr := r.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
