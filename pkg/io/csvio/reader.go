package csvio

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
	iox "github.com/wdm0006/catalogetl/pkg/io/ioutils"
)

type ReaderOptions struct {
	HasHeader bool
	Delimiter rune // 0 = sniff, default ','
	BatchSize int  // default etl.DefaultBatchSize
}

// Source reads delimited text, optionally gzip compressed.
type Source struct {
	Options ReaderOptions
}

func (Source) Name() string { return "csv" }

// Open reads the header and the first batch, which fixes the schema.
func (s Source) Open(ctx context.Context, location string) (etl.Reader, error) {
	rc, err := iox.OpenMaybeCompressed(location)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(rc, 64*1024)
	rr := csv.NewReader(br)
	rr.FieldsPerRecord = -1
	rr.ReuseRecord = true
	if s.Options.Delimiter == 0 {
		sample, _ := br.Peek(4096)
		d, lazy := sniffDelimiterAndQuotes(sample)
		rr.Comma = d
		rr.LazyQuotes = lazy
	} else {
		rr.Comma = s.Options.Delimiter
	}
	r := &Reader{rc: rc, r: rr, opt: s.Options}
	if r.opt.BatchSize <= 0 {
		r.opt.BatchSize = etl.DefaultBatchSize
	}
	if err := r.inferSchema(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return r, nil
}

// Reader yields batches of at most BatchSize records.
type Reader struct {
	rc     io.ReadCloser
	r      *csv.Reader
	opt    ReaderOptions
	schema etl.Schema
	buf    [][]string // records read during inference
	batch  int
	done   bool
	closed bool
}

func (r *Reader) Schema() etl.Schema { return r.schema }

func (r *Reader) inferSchema(ctx context.Context) error {
	var names []string
	rec, err := r.r.Read()
	if errors.Is(err, io.EOF) {
		r.done = true
		return nil
	}
	if err != nil {
		return err
	}
	if r.opt.HasHeader {
		names = make([]string, len(rec))
		for i := range rec {
			names[i] = strings.TrimSpace(strings.ToValidUTF8(rec[i], "?"))
		}
		// strip BOM on first header cell if present
		if len(names) > 0 {
			names[0] = strings.TrimPrefix(names[0], "\ufeff")
		}
	} else {
		names = make([]string, len(rec))
		for i := range names {
			names[i] = "col_" + strconv.Itoa(i)
		}
		r.buf = append(r.buf, slices.Clone(rec))
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return &etl.SchemaInconsistencyError{Batch: -1, Row: -1, Column: n, Reason: "duplicate column name in header"}
		}
		seen[n] = true
	}

	for len(r.buf) < r.opt.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.r.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			return err
		}
		r.buf = append(r.buf, slices.Clone(rec))
	}

	r.schema = etl.Schema{Columns: make([]etl.ColumnSchema, len(names))}
	cells := make([]string, 0, len(r.buf))
	for c := range names {
		cells = cells[:0]
		for _, rec := range r.buf {
			if c < len(rec) {
				cells = append(cells, rec[c])
			}
		}
		r.schema.Columns[c] = etl.ColumnSchema{Name: names[c], Type: etl.InferKind(cells), Nullable: true}
	}
	return nil
}

// Next returns the next batch or io.EOF when complete.
func (r *Reader) Next(ctx context.Context) (*etl.Batch, error) {
	if r.closed {
		return nil, io.EOF
	}
	b := etl.NewBatch(r.schema)
	for len(r.buf) > 0 && b.Rows() < r.opt.BatchSize {
		rec := r.buf[0]
		r.buf = r.buf[1:]
		if err := r.appendRecord(b, rec); err != nil {
			return nil, err
		}
	}
	for !r.done && b.Rows() < r.opt.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.r.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv batch %d: %w", r.batch, err)
		}
		if err := r.appendRecord(b, rec); err != nil {
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

func (r *Reader) appendRecord(b *etl.Batch, rec []string) error {
	row := b.Rows()
	if len(rec) != len(r.schema.Columns) {
		return &etl.SchemaInconsistencyError{
			Batch:  r.batch,
			Row:    row,
			Reason: fmt.Sprintf("record has %d fields, want %d", len(rec), len(r.schema.Columns)),
		}
	}
	b.AppendNullRow()
	for i, cs := range r.schema.Columns {
		cell := rec[i]
		if cs.Type == etl.KindString {
			cell = strings.ToValidUTF8(cell, "?")
		}
		v, err := etl.ParseCell(cs.Type, cell)
		if err != nil {
			return &etl.SchemaInconsistencyError{
				Batch:  r.batch,
				Row:    row,
				Column: cs.Name,
				Reason: fmt.Sprintf("cannot parse %q as %s", cell, cs.Type),
			}
		}
		if err := b.SetCell(row, cs.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	return r.rc.Close()
}

func sniffDelimiterAndQuotes(sample []byte) (rune, bool) {
	if len(sample) == 0 {
		return ',', false
	}
	// only the first line decides, quoted text in later rows is noisy
	if i := strings.IndexByte(string(sample), '\n'); i > 0 {
		sample = sample[:i]
	}
	candidates := []byte{',', '\t', ';', '|'}
	best := byte(',')
	bestCount := 0
	for _, c := range candidates {
		cnt := 0
		inQuote := false
		for _, b := range sample {
			if b == '"' {
				inQuote = !inQuote
			}
			if b == c && !inQuote {
				cnt++
			}
		}
		if cnt > bestCount {
			bestCount = cnt
			best = c
		}
	}
	quoteCount := strings.Count(string(sample), `"`)
	return rune(best), quoteCount%2 != 0
}
