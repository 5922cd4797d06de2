package parquetio

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	pw "github.com/xitongsys/parquet-go/writer"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type WriterOptions struct {
	// Parallel is the marshal parallelism of the parquet writer (default 4).
	Parallel int64
}

// Sink writes a Parquet file. Rows go to a temporary file in the target
// directory that is renamed over the destination on Close, so a failed run
// leaves no partial Parquet file behind.
type Sink struct {
	Options WriterOptions
}

func (Sink) Name() string { return "parquet" }

func parquetSchemaJSON(s etl.Schema) (string, error) {
	type field struct {
		Tag string `json:"Tag"`
	}
	type schema struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}
	sc := schema{Tag: "name=schema, repetitiontype=REQUIRED"}
	for _, cs := range s.Columns {
		if cs.Name == "" || strings.ContainsAny(cs.Name, ",= ") {
			return "", fmt.Errorf("column name %q cannot be used in a parquet schema", cs.Name)
		}
		tag := "name=" + cs.Name + ", repetitiontype=OPTIONAL, type="
		switch cs.Type {
		case etl.KindFloat:
			tag += "DOUBLE"
		case etl.KindInt:
			tag += "INT64"
		case etl.KindBool:
			tag += "BOOLEAN"
		default:
			tag += "BYTE_ARRAY, convertedtype=UTF8"
		}
		sc.Fields = append(sc.Fields, field{Tag: tag})
	}
	b, err := json.Marshal(sc)
	return string(b), err
}

func (s Sink) Create(ctx context.Context, location string, schema etl.Schema) (etl.Writer, error) {
	wrap := func(err error) error { return &etl.DestinationWriteError{Location: location, Err: err} }
	sj, err := parquetSchemaJSON(schema)
	if err != nil {
		return nil, wrap(err)
	}
	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, wrap(err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(location)+"."+uuid.NewString()+".tmp")
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return nil, wrap(err)
	}
	par := s.Options.Parallel
	if par <= 0 {
		par = 4
	}
	jw, err := pw.NewJSONWriter(sj, fw, par)
	if err != nil {
		_ = fw.Close()
		_ = os.Remove(tmp)
		return nil, wrap(fmt.Errorf("parquet writer init: %w", err))
	}
	return &Writer{location: location, tmp: tmp, fw: fw, jw: jw, schema: schema}, nil
}

// Writer buffers rows through the parquet-go JSON writer.
type Writer struct {
	location string
	tmp      string
	fw       source.ParquetFile
	jw       *pw.JSONWriter
	schema   etl.Schema
	failed   bool
	done     bool
}

func (w *Writer) Write(ctx context.Context, b *etl.Batch) error {
	if w.failed || w.done {
		return &etl.DestinationWriteError{Location: w.location, Err: fmt.Errorf("writer is no longer usable")}
	}
	rec := make(map[string]any, b.Cols())
	for r := 0; r < b.Rows(); r++ {
		clear(rec)
		for c := 0; c < b.Cols(); c++ {
			v := b.ColumnAt(c).Value(r)
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = nil
			}
			rec[b.ColumnAt(c).Name()] = v
		}
		js, err := json.Marshal(rec)
		if err != nil {
			w.failed = true
			return &etl.DestinationWriteError{Location: w.location, Err: err}
		}
		if err := w.jw.Write(string(js)); err != nil {
			w.failed = true
			return &etl.DestinationWriteError{Location: w.location, Err: fmt.Errorf("parquet write row: %w", err)}
		}
	}
	return nil
}

// Close flushes the footer and moves the file into place.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	if w.failed {
		return w.Abort()
	}
	w.done = true
	if err := w.jw.WriteStop(); err != nil {
		_ = w.fw.Close()
		_ = os.Remove(w.tmp)
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	if err := w.fw.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	if err := os.Rename(w.tmp, w.location); err != nil {
		_ = os.Remove(w.tmp)
		return &etl.DestinationWriteError{Location: w.location, Err: err}
	}
	return nil
}

// Abort discards everything written so far.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.jw.WriteStop()
	_ = w.fw.Close()
	if err := os.Remove(w.tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	if w.failed {
		return &etl.DestinationWriteError{Location: w.location, Err: fmt.Errorf("aborted after a failed write")}
	}
	return nil
}
