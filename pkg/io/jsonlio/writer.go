package jsonlio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
	iox "github.com/wdm0006/catalogetl/pkg/io/ioutils"
)

type WriterOptions struct {
	// Append adds lines to an existing file whose first object must carry
	// the schema's keys in order.
	Append bool
}

// Sink writes one JSON object per line with keys in schema order and
// explicit nulls.
type Sink struct {
	Options WriterOptions
}

func (Sink) Name() string { return "jsonl" }

func (s Sink) Create(ctx context.Context, location string, schema etl.Schema) (etl.Writer, error) {
	if s.Options.Append && location != "-" {
		keys, err := firstKeys(ctx, location)
		if err != nil {
			return nil, &etl.DestinationWriteError{Location: location, Err: err}
		}
		if keys != nil && !slices.Equal(keys, schema.Names()) {
			return nil, &etl.DestinationWriteError{Location: location, Err: &etl.SchemaInconsistencyError{
				Batch: -1,
				Row:   -1,
				Reason: fmt.Sprintf("existing keys [%s] do not match [%s]",
					strings.Join(keys, ","), strings.Join(schema.Names(), ",")),
			}}
		}
	}
	bf, err := iox.CreateBatchFile(location, s.Options.Append)
	if err != nil {
		return nil, &etl.DestinationWriteError{Location: location, Err: err}
	}
	w := &Writer{bf: bf, schema: schema, keys: make([][]byte, len(schema.Columns))}
	for i, cs := range schema.Columns {
		k, err := marshal(cs.Name)
		if err != nil {
			_ = bf.Close()
			return nil, &etl.DestinationWriteError{Location: location, Err: err}
		}
		w.keys[i] = k
	}
	return w, nil
}

// firstKeys returns the key order of the first object in an existing file.
func firstKeys(ctx context.Context, path string) ([]string, error) {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && st.Size() == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := Source{Options: ReaderOptions{BatchSize: 1}}.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return r.Schema().Names(), nil
}

// Writer encodes each batch in memory and appends it as one unit.
type Writer struct {
	bf     *iox.BatchFile
	schema etl.Schema
	keys   [][]byte
	buf    bytes.Buffer
}

func (w *Writer) Write(ctx context.Context, b *etl.Batch) error {
	if !b.Schema().Equal(w.schema) {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: &etl.SchemaInconsistencyError{
			Batch: -1, Row: -1, Reason: "batch schema differs from destination schema",
		}}
	}
	w.buf.Reset()
	for r := 0; r < b.Rows(); r++ {
		w.buf.WriteByte('{')
		for c := 0; c < b.Cols(); c++ {
			if c > 0 {
				w.buf.WriteByte(',')
			}
			w.buf.Write(w.keys[c])
			w.buf.WriteByte(':')
			if err := encodeValue(&w.buf, b.ColumnAt(c).Value(r)); err != nil {
				return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
			}
		}
		w.buf.WriteString("}\n")
	}
	if err := w.bf.Commit(w.buf.Bytes()); err != nil {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
	}
	return nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			buf.WriteString("null")
			return nil
		}
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	default:
		raw, err := marshal(t)
		if err != nil {
			return err
		}
		buf.Write(raw)
	}
	return nil
}

// marshal encodes v without HTML escaping.
func marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

func (w *Writer) Close() error {
	if err := w.bf.Close(); err != nil {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
	}
	return nil
}
