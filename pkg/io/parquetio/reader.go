package parquetio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	parquet "github.com/segmentio/parquet-go"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type ReaderOptions struct {
	BatchSize int // default etl.DefaultBatchSize
}

// Source reads flat Parquet files. The schema comes from the file footer.
type Source struct {
	Options ReaderOptions
}

func (Source) Name() string { return "parquet" }

func (s Source) Open(ctx context.Context, location string) (etl.Reader, error) {
	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &etl.SourceNotFoundError{Location: location, Err: err}
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet %s: %w", location, err)
	}
	schema, err := schemaOf(pf.Schema())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := s.Options.BatchSize
	if size <= 0 {
		size = etl.DefaultBatchSize
	}
	return &Reader{
		file:   f,
		reader: parquet.NewReader(pf),
		schema: schema,
		rows:   make([]parquet.Row, size),
	}, nil
}

func schemaOf(ps *parquet.Schema) (etl.Schema, error) {
	fields := ps.Fields()
	s := etl.Schema{Columns: make([]etl.ColumnSchema, len(fields))}
	for i, fd := range fields {
		if !fd.Leaf() || fd.Repeated() {
			return etl.Schema{}, &etl.SchemaInconsistencyError{
				Batch: -1, Row: -1, Column: fd.Name(), Reason: "nested or repeated parquet fields are not supported",
			}
		}
		var k etl.Kind
		switch fd.Type().Kind() {
		case parquet.Boolean:
			k = etl.KindBool
		case parquet.Int32, parquet.Int64:
			k = etl.KindInt
		case parquet.Float, parquet.Double:
			k = etl.KindFloat
		default:
			k = etl.KindString
		}
		s.Columns[i] = etl.ColumnSchema{Name: fd.Name(), Type: k, Nullable: fd.Optional()}
	}
	return s, nil
}

// Reader yields batches straight from the row groups.
type Reader struct {
	file   *os.File
	reader *parquet.Reader
	schema etl.Schema
	rows   []parquet.Row
	batch  int
	done   bool
	closed bool
}

func (r *Reader) Schema() etl.Schema { return r.schema }

func (r *Reader) Next(ctx context.Context) (*etl.Batch, error) {
	if r.closed || r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// ReadRows stops at row group boundaries; keep going until the batch is full
	n := 0
	for n < len(r.rows) && !r.done {
		m, err := r.reader.ReadRows(r.rows[n:])
		n += m
		if errors.Is(err, io.EOF) {
			r.done = true
		} else if err != nil {
			return nil, fmt.Errorf("parquet batch %d: %w", r.batch, err)
		} else if m == 0 {
			break
		}
	}
	if n == 0 {
		_ = r.Close()
		return nil, io.EOF
	}
	b := etl.NewBatch(r.schema)
	for i := 0; i < n; i++ {
		b.AppendNullRow()
		for _, v := range r.rows[i] {
			c := v.Column()
			if c < 0 || c >= len(r.schema.Columns) || v.IsNull() {
				continue
			}
			if err := b.SetCell(i, r.schema.Columns[c].Name, value(v)); err != nil {
				return nil, &etl.SchemaInconsistencyError{Batch: r.batch, Row: i, Column: r.schema.Columns[c].Name, Reason: err.Error()}
			}
		}
	}
	r.batch++
	return b, nil
}

func value(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}

// Close releases the reader and file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.reader.Close()
	return r.file.Close()
}
