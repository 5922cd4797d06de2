package sqlio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type WriterOptions struct {
	Driver string
	Table  string
	// DB replaces opening the location as a DSN. The caller keeps ownership.
	DB *sql.DB
}

// Sink inserts batches into a table, creating it when absent. Every batch
// is one transaction.
type Sink struct {
	Options WriterOptions
}

func (s Sink) Name() string { return "sql" }

func (s Sink) Create(ctx context.Context, location string, schema etl.Schema) (etl.Writer, error) {
	wrap := func(err error) error { return &etl.DestinationWriteError{Location: location, Err: err} }
	d, err := lookup(s.Options.Driver)
	if err != nil {
		return nil, wrap(err)
	}
	if s.Options.Table == "" {
		return nil, wrap(errors.New("sql sink needs a table"))
	}
	if len(schema.Columns) == 0 {
		return nil, wrap(errors.New("cannot create a table without columns"))
	}
	db, owned := s.Options.DB, false
	if db == nil {
		if db, err = open(d, location); err != nil {
			return nil, wrap(err)
		}
		owned = true
	}
	table := d.quote(s.Options.Table)
	defs := make([]string, len(schema.Columns))
	names := make([]string, len(schema.Columns))
	marks := make([]string, len(schema.Columns))
	for i, cs := range schema.Columns {
		names[i] = d.quote(cs.Name)
		defs[i] = names[i] + " " + d.types[cs.Type]
		marks[i] = d.placeholder(i + 1)
	}
	if _, err := db.ExecContext(ctx, d.createTable(table, strings.Join(defs, ", "))); err != nil {
		if owned {
			_ = db.Close()
		}
		return nil, wrap(fmt.Errorf("create table: %w", err))
	}
	return &Writer{
		location: location,
		db:       db,
		ownsDB:   owned,
		schema:   schema,
		insert:   fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(marks, ", ")),
	}, nil
}

// Writer commits one transaction per batch.
type Writer struct {
	location string
	db       *sql.DB
	ownsDB   bool
	schema   etl.Schema
	insert   string
}

func (w *Writer) Write(ctx context.Context, b *etl.Batch) error {
	if b.Rows() == 0 {
		return nil
	}
	if !b.Schema().Equal(w.schema) {
		return &etl.DestinationWriteError{Location: w.location, Err: &etl.SchemaInconsistencyError{
			Batch: -1, Row: -1, Reason: "batch schema differs from table schema",
		}}
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	for r := 0; r < b.Rows(); r++ {
		if _, err := tx.ExecContext(ctx, w.insert, b.Values(r)...); err != nil {
			_ = tx.Rollback()
			return &etl.DestinationWriteError{Location: w.location, Err: fmt.Errorf("insert row %d: %w", r, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	return nil
}

func (w *Writer) Close() error {
	if !w.ownsDB {
		return nil
	}
	if err := w.db.Close(); err != nil {
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	return nil
}
