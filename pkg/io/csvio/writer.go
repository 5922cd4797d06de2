package csvio

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
	iox "github.com/wdm0006/catalogetl/pkg/io/ioutils"
)

type WriterOptions struct {
	Delimiter rune // default ','
	// Append adds rows to an existing file whose header must match the schema.
	Append bool
}

// Sink writes delimited text with a header line.
type Sink struct {
	Options WriterOptions
}

func (Sink) Name() string { return "csv" }

// Create opens the destination and commits the header, so a run with zero
// rows still leaves a header-only file.
func (s Sink) Create(ctx context.Context, location string, schema etl.Schema) (etl.Writer, error) {
	wrap := func(err error) error { return &etl.DestinationWriteError{Location: location, Err: err} }
	hasHeader := false
	if s.Options.Append && location != "-" {
		existing, err := readHeader(location, s.Options.Delimiter)
		if err != nil {
			return nil, wrap(err)
		}
		if existing != nil {
			if !slices.Equal(existing, schema.Names()) {
				return nil, wrap(&etl.SchemaInconsistencyError{
					Batch: -1,
					Row:   -1,
					Reason: fmt.Sprintf("existing header [%s] does not match [%s]",
						strings.Join(existing, ","), strings.Join(schema.Names(), ",")),
				})
			}
			hasHeader = true
		}
	}
	bf, err := iox.CreateBatchFile(location, s.Options.Append)
	if err != nil {
		return nil, wrap(err)
	}
	w := &Writer{bf: bf, schema: schema, comma: s.Options.Delimiter}
	if !hasHeader {
		var buf bytes.Buffer
		cw := w.csvWriter(&buf)
		if err := cw.Write(schema.Names()); err != nil {
			_ = bf.Close()
			return nil, wrap(err)
		}
		cw.Flush()
		if err := bf.Commit(buf.Bytes()); err != nil {
			_ = bf.Close()
			return nil, wrap(err)
		}
	}
	return w, nil
}

// readHeader returns the first record of an existing non-empty file, or nil.
func readHeader(path string, comma rune) ([]string, error) {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && st.Size() == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	if comma != 0 {
		r.Comma = comma
	}
	rec, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(rec) > 0 {
		rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
	}
	return rec, nil
}

// Writer appends each batch as one committed unit.
type Writer struct {
	bf     *iox.BatchFile
	schema etl.Schema
	comma  rune
	buf    bytes.Buffer
}

func (w *Writer) csvWriter(out io.Writer) *csv.Writer {
	cw := csv.NewWriter(out)
	if w.comma != 0 {
		cw.Comma = w.comma
	}
	return cw
}

func (w *Writer) Write(ctx context.Context, b *etl.Batch) error {
	if !b.Schema().Equal(w.schema) {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: &etl.SchemaInconsistencyError{
			Batch: -1, Row: -1, Reason: "batch schema differs from destination schema",
		}}
	}
	w.buf.Reset()
	cw := w.csvWriter(&w.buf)
	rec := make([]string, b.Cols())
	for r := 0; r < b.Rows(); r++ {
		for c := 0; c < b.Cols(); c++ {
			rec[c] = formatCell(b.ColumnAt(c).Value(r))
		}
		if err := cw.Write(rec); err != nil {
			return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
	}
	if err := w.bf.Commit(w.buf.Bytes()); err != nil {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
	}
	return nil
}

func (w *Writer) Close() error {
	if err := w.bf.Close(); err != nil {
		return &etl.DestinationWriteError{Location: w.bf.Path(), Err: err}
	}
	return nil
}

// formatCell keeps a decimal point on floats so integral values read back
// as floats.
func formatCell(v any) string {
	f, ok := v.(float64)
	if !ok {
		return etl.FormatCell(v)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
