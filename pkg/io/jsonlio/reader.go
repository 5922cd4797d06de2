package jsonlio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
	iox "github.com/wdm0006/catalogetl/pkg/io/ioutils"
)

type ReaderOptions struct {
	BatchSize int // default etl.DefaultBatchSize
}

// Source reads JSON documents: one object per line, or a single top-level
// array of objects.
type Source struct {
	Options ReaderOptions
}

func (Source) Name() string { return "jsonl" }

// document is one decoded object with its keys in input order.
type document struct {
	keys []string
	vals map[string]any
}

func (s Source) Open(ctx context.Context, location string) (etl.Reader, error) {
	rc, err := iox.OpenMaybeCompressed(location)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(rc)
	r := &Reader{rc: rc, opt: s.Options}
	if r.opt.BatchSize <= 0 {
		r.opt.BatchSize = etl.DefaultBatchSize
	}
	if bom, _ := br.Peek(3); string(bom) == "\ufeff" {
		_, _ = br.Discard(3)
	}
	first, err := peekNonSpace(br)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = rc.Close()
		return nil, err
	}
	r.dec = json.NewDecoder(br)
	r.dec.UseNumber()
	if first == '[' {
		if _, err := r.dec.Token(); err != nil {
			_ = rc.Close()
			return nil, err
		}
		r.array = true
	}
	if err := r.inferSchema(ctx); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return r, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for i := 1; ; i++ {
		b, err := br.Peek(i)
		if err != nil {
			return 0, err
		}
		c := b[i-1]
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c, nil
	}
}

// Reader yields batches of decoded documents.
type Reader struct {
	rc     io.ReadCloser
	dec    *json.Decoder
	opt    ReaderOptions
	array  bool
	schema etl.Schema
	buf    []document
	batch  int
	done   bool
	closed bool
}

func (r *Reader) Schema() etl.Schema { return r.schema }

// next decodes one document or returns io.EOF.
func (r *Reader) next() (document, error) {
	if r.done {
		return document{}, io.EOF
	}
	if r.array && !r.dec.More() {
		r.done = true
		if _, err := r.dec.Token(); err != nil {
			return document{}, err
		}
		return document{}, io.EOF
	}
	tok, err := r.dec.Token()
	if errors.Is(err, io.EOF) {
		r.done = true
		return document{}, io.EOF
	}
	if err != nil {
		return document{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return document{}, fmt.Errorf("expected JSON object, got %v", tok)
	}
	doc := document{vals: map[string]any{}}
	for r.dec.More() {
		tok, err := r.dec.Token()
		if err != nil {
			return document{}, err
		}
		key, _ := tok.(string)
		var v any
		if err := r.dec.Decode(&v); err != nil {
			return document{}, err
		}
		if _, dup := doc.vals[key]; !dup {
			doc.keys = append(doc.keys, key)
		}
		doc.vals[key] = v
	}
	if _, err := r.dec.Token(); err != nil {
		return document{}, err
	}
	return doc, nil
}

func (r *Reader) inferSchema(ctx context.Context) error {
	var keys []string
	seen := map[string]bool{}
	for len(r.buf) < r.opt.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		for _, k := range doc.keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		r.buf = append(r.buf, doc)
	}
	r.schema = etl.Schema{Columns: make([]etl.ColumnSchema, len(keys))}
	for i, k := range keys {
		vals := make([]any, 0, len(r.buf))
		for _, d := range r.buf {
			vals = append(vals, d.vals[k])
		}
		r.schema.Columns[i] = etl.ColumnSchema{Name: k, Type: inferKind(vals), Nullable: true}
	}
	return nil
}

func inferKind(vals []any) etl.Kind {
	num, integer, boolean, other := 0, 0, 0, 0
	for _, v := range vals {
		switch t := v.(type) {
		case nil:
		case json.Number:
			num++
			if !strings.ContainsAny(t.String(), ".eE") {
				integer++
			}
		case bool:
			boolean++
		default:
			other++
		}
	}
	switch {
	case other > 0 || (num > 0 && boolean > 0):
		return etl.KindString
	case num > 0 && integer == num:
		return etl.KindInt
	case num > 0:
		return etl.KindFloat
	case boolean > 0:
		return etl.KindBool
	}
	return etl.KindString
}

// Next returns the next batch or io.EOF when complete.
func (r *Reader) Next(ctx context.Context) (*etl.Batch, error) {
	if r.closed {
		return nil, io.EOF
	}
	b := etl.NewBatch(r.schema)
	for len(r.buf) > 0 && b.Rows() < r.opt.BatchSize {
		d := r.buf[0]
		r.buf = r.buf[1:]
		if err := r.appendDoc(b, d); err != nil {
			return nil, err
		}
	}
	for b.Rows() < r.opt.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("json batch %d: %w", r.batch, err)
		}
		if err := r.appendDoc(b, d); err != nil {
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

func (r *Reader) appendDoc(b *etl.Batch, d document) error {
	row := b.Rows()
	for _, k := range d.keys {
		if r.schema.Index(k) < 0 {
			return &etl.SchemaInconsistencyError{Batch: r.batch, Row: row, Column: k, Reason: "unknown key"}
		}
	}
	b.AppendNullRow()
	for _, cs := range r.schema.Columns {
		v, err := convert(cs.Type, d.vals[cs.Name])
		if err == nil {
			err = b.SetCell(row, cs.Name, v)
		}
		if err != nil {
			return &etl.SchemaInconsistencyError{Batch: r.batch, Row: row, Column: cs.Name, Reason: err.Error()}
		}
	}
	return nil
}

// convert maps a decoded JSON value onto the column kind.
func convert(k etl.Kind, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		switch k {
		case etl.KindInt:
			return t.Int64()
		case etl.KindFloat:
			return t.Float64()
		case etl.KindString:
			return t.String(), nil
		}
		return nil, fmt.Errorf("number %s in %s column", t, k)
	case map[string]any, []any:
		if k != etl.KindString {
			return nil, fmt.Errorf("nested value in %s column", k)
		}
		raw, err := json.Marshal(t)
		return string(raw), err
	}
	return v, nil
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
