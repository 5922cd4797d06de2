package etl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultBatchSize is used by readers configured with a non-positive size.
const DefaultBatchSize = 1000

// Source opens a streaming Reader over a location.
type Source interface {
	Name() string
	Open(ctx context.Context, location string) (Reader, error)
}

// Reader yields batches in source order until io.EOF. Schema is known once
// the reader is open. Close releases the underlying handle and is safe to
// call after exhaustion or a failed Next.
type Reader interface {
	Schema() Schema
	Next(ctx context.Context) (*Batch, error)
	Close() error
}

// Sink creates a Writer for a destination and output schema.
type Sink interface {
	Name() string
	Create(ctx context.Context, location string, schema Schema) (Writer, error)
}

// Writer persists batches in arrival order. Close flushes and releases the
// destination; a run is only successful once Close returned nil.
type Writer interface {
	Write(ctx context.Context, b *Batch) error
	Close() error
}

// Aborter is implemented by writers that can discard uncommitted output.
// A failed run calls Abort instead of Close on such writers.
type Aborter interface {
	Abort() error
}

// State is the orchestrator's position in a run.
type State int

const (
	StateIdle State = iota
	StateReading
	StateTransforming
	StateWriting
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateTransforming:
		return "transforming"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// RunResult is the terminal record of one Run. FailedIn is the state the run
// was in when it failed.
type RunResult struct {
	RunID          string
	State          State
	FailedIn       State
	Batches        int
	RowsRead       int
	RowsWritten    int
	BatchesWritten int
	StartedAt      time.Time
	Duration       time.Duration
	Err            *StageError
}

func (r *RunResult) OK() bool { return r.State == StateDone }

type Options struct {
	// Expect lists columns the source must provide before any batch is processed.
	Expect     []ColumnSchema
	Instrument Instrument
	Logger     *slog.Logger
}

// Orchestrator drives Source → Chain → Sink one batch at a time. It holds
// no data and is safe to reuse for sequential runs.
type Orchestrator struct {
	Source Source
	Chain  *Chain
	Sink   Sink
	Opts   Options
}

func NewOrchestrator(src Source, chain *Chain, sink Sink, opts Options) *Orchestrator {
	if chain == nil {
		chain = NewChain()
	}
	return &Orchestrator{Source: src, Chain: chain, Sink: sink, Opts: opts}
}

// Run executes one pipeline run from input to output. On failure the
// returned error is a *StageError, also recorded in the result.
func (o *Orchestrator) Run(ctx context.Context, input, output string) (*RunResult, error) {
	r := &run{
		o:   o,
		out: output,
		res: &RunResult{RunID: uuid.NewString(), StartedAt: time.Now(), State: StateIdle},
		log: o.Opts.Logger,
		ins: o.Opts.Instrument,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.log = r.log.With("run_id", r.res.RunID)
	if r.ins == nil {
		r.ins = SlogInstrument{Logger: r.log}
	}
	r.log.Info("run started", "source", o.Source.Name(), "input", input, "sink", o.Sink.Name(), "output", output, "steps", o.Chain.Len())

	err := r.execute(ctx, input)
	r.res.Duration = time.Since(r.res.StartedAt)
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: StageFinalize, BatchIndex: -1, Err: err}
		}
		r.res.FailedIn = r.res.State
		r.res.State = StateFailed
		r.res.Err = se
		r.log.Error("run failed", "stage", string(se.Stage), "batch", se.BatchIndex, "rows_written", r.res.RowsWritten, "error", se.Err)
		return r.res, se
	}
	r.res.State = StateDone
	r.log.Info("run finished", "batches", r.res.Batches, "rows_read", r.res.RowsRead, "rows_written", r.res.RowsWritten, "duration", r.res.Duration)
	return r.res, nil
}

type run struct {
	o   *Orchestrator
	out string
	res *RunResult
	log *slog.Logger
	ins Instrument
	w   Writer
}

func (r *run) fail(stage Stage, batch int, err error) error {
	return &StageError{Stage: stage, BatchIndex: batch, Err: err}
}

func (r *run) execute(ctx context.Context, input string) error {
	r.res.State = StateReading
	r.ins.StageStarted(StageRead, -1, r.o.Source.Name())
	rd, d, err := timed(func() (Reader, error) { return r.o.Source.Open(ctx, input) })
	r.ins.StageFinished(StageRead, -1, r.o.Source.Name(), d, err)
	if err != nil {
		return r.fail(StageRead, -1, err)
	}
	defer func() {
		if cerr := rd.Close(); cerr != nil {
			r.log.Warn("close reader", "error", cerr)
		}
	}()
	// committed batches stay on disk when a later stage fails
	defer func() {
		if r.w == nil {
			return
		}
		var cerr error
		if a, ok := r.w.(Aborter); ok {
			cerr = a.Abort()
		} else {
			cerr = r.w.Close()
		}
		if cerr != nil {
			r.log.Warn("close writer after failure", "error", cerr)
		}
	}()

	schema := rd.Schema()
	r.ins.StageStarted(StageValidate, -1, "schema")
	_, vr := Validate(schema, r.o.Opts.Expect, r.o.Chain)
	r.ins.StageFinished(StageValidate, -1, "schema", 0, vr.Err())
	if !vr.OK() {
		return r.fail(StageValidate, -1, vr.Err())
	}

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return r.fail(StageRead, idx, err)
		}
		r.res.State = StateReading
		r.ins.StageStarted(StageRead, idx, r.o.Source.Name())
		b, d, err := timed(func() (*Batch, error) { return rd.Next(ctx) })
		if errors.Is(err, io.EOF) {
			r.ins.StageFinished(StageRead, idx, r.o.Source.Name(), d, nil)
			break
		}
		r.ins.StageFinished(StageRead, idx, r.o.Source.Name(), d, err)
		if err != nil {
			return r.fail(StageRead, idx, err)
		}
		r.res.Batches++
		r.res.RowsRead += b.Rows()

		r.res.State = StateTransforming
		out, err := r.o.Chain.apply(ctx, b, idx, r.ins)
		if err != nil {
			return r.fail(StageTransform, idx, err)
		}

		r.res.State = StateWriting
		if err := r.write(ctx, idx, out); err != nil {
			return r.fail(StageWrite, idx, err)
		}
		r.log.Debug("batch done", "batch", idx, "rows", out.Rows(), "rows_written", r.res.RowsWritten)
	}

	if r.w == nil {
		// no batches: derive the output schema from an empty batch so the
		// destination still carries a header
		out, err := r.o.Chain.apply(ctx, NewBatch(schema), -1, r.ins)
		if err != nil {
			return r.fail(StageTransform, -1, err)
		}
		r.res.State = StateWriting
		if err := r.create(ctx, -1, out.Schema()); err != nil {
			return r.fail(StageWrite, -1, err)
		}
	}

	r.res.State = StateFinalizing
	w := r.w
	r.w = nil
	r.ins.StageStarted(StageFinalize, -1, r.o.Sink.Name())
	_, d, err = timed(func() (struct{}, error) { return struct{}{}, w.Close() })
	r.ins.StageFinished(StageFinalize, -1, r.o.Sink.Name(), d, err)
	if err != nil {
		return r.fail(StageFinalize, -1, err)
	}
	return nil
}

func (r *run) create(ctx context.Context, idx int, s Schema) error {
	r.ins.StageStarted(StageWrite, idx, r.o.Sink.Name())
	w, d, err := timed(func() (Writer, error) { return r.o.Sink.Create(ctx, r.out, s) })
	r.ins.StageFinished(StageWrite, idx, r.o.Sink.Name(), d, err)
	if err != nil {
		return err
	}
	r.w = w
	return nil
}

func (r *run) write(ctx context.Context, idx int, b *Batch) error {
	if r.w == nil {
		if err := r.create(ctx, idx, b.Schema()); err != nil {
			return err
		}
	}
	r.ins.StageStarted(StageWrite, idx, r.o.Sink.Name())
	_, d, err := timed(func() (struct{}, error) { return struct{}{}, r.w.Write(ctx, b) })
	r.ins.StageFinished(StageWrite, idx, r.o.Sink.Name(), d, err)
	if err != nil {
		return err
	}
	r.res.RowsWritten += b.Rows()
	r.res.BatchesWritten++
	return nil
}
