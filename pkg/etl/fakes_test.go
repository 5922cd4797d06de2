package etl

import (
	"context"
	"errors"
	"io"
	"time"
)

// memSource serves rows from memory in batches of size.
type memSource struct {
	schema  Schema
	rows    [][]any
	size    int
	openErr error
	readErr map[int]error // batch index -> error returned by Next
	reader  *memReader
}

func (s *memSource) Name() string { return "mem" }

func (s *memSource) Open(ctx context.Context, location string) (Reader, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.reader = &memReader{src: s}
	return s.reader, nil
}

type memReader struct {
	src    *memSource
	pos    int
	batch  int
	closed bool
}

func (r *memReader) Schema() Schema { return r.src.schema }

func (r *memReader) Next(ctx context.Context) (*Batch, error) {
	if err := r.src.readErr[r.batch]; err != nil {
		return nil, err
	}
	if r.pos >= len(r.src.rows) {
		return nil, io.EOF
	}
	b := NewBatch(r.src.schema)
	for ; r.pos < len(r.src.rows) && b.Rows() < r.src.size; r.pos++ {
		if err := b.AppendRow(r.src.rows[r.pos]...); err != nil {
			return nil, err
		}
	}
	r.batch++
	return b, nil
}

func (r *memReader) Close() error {
	r.closed = true
	return nil
}

// memSink records every batch it receives.
type memSink struct {
	createErr error
	writeErr  map[int]error
	closeErr  error
	abortable bool
	w         *memWriter
}

func (s *memSink) Name() string { return "memsink" }

func (s *memSink) Create(ctx context.Context, location string, schema Schema) (Writer, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.w = &memWriter{sink: s, schema: schema}
	if s.abortable {
		return &abortWriter{s.w}, nil
	}
	return s.w, nil
}

type memWriter struct {
	sink    *memSink
	schema  Schema
	batches []*Batch
	closed  bool
	aborted bool
}

func (w *memWriter) Write(ctx context.Context, b *Batch) error {
	if err := w.sink.writeErr[len(w.batches)]; err != nil {
		return err
	}
	w.batches = append(w.batches, b)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return w.sink.closeErr
}

func (w *memWriter) rows() [][]any {
	var out [][]any
	for _, b := range w.batches {
		for i := 0; i < b.Rows(); i++ {
			out = append(out, b.Values(i))
		}
	}
	return out
}

type abortWriter struct{ *memWriter }

func (w *abortWriter) Abort() error {
	w.aborted = true
	return nil
}

// failAt fails on the given batch index.
type failAt struct{ batch, seen int }

func (f *failAt) Name() string { return "fail_at" }

func (f *failAt) Apply(ctx context.Context, b *Batch) (*Batch, error) {
	defer func() { f.seen++ }()
	if f.seen == f.batch {
		return nil, errors.New("boom")
	}
	return b, nil
}

// recorder captures instrument calls.
type recorder struct {
	started  []Stage
	finished []Stage
}

func (r *recorder) StageStarted(stage Stage, batch int, name string) {
	r.started = append(r.started, stage)
}

func (r *recorder) StageFinished(stage Stage, batch int, name string, d time.Duration, err error) {
	r.finished = append(r.finished, stage)
}
