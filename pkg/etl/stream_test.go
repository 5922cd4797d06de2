package etl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func pairSchema() Schema {
	return Schema{Columns: []ColumnSchema{
		{Name: "id", Type: KindInt},
		{Name: "name", Type: KindString, Nullable: true},
	}}
}

func pairRows(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{i + 1, "n"}
	}
	return out
}

func TestRunBatchesAndResult(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(7), size: 3}
	sink := &memSink{}
	rec := &recorder{}
	res, err := NewOrchestrator(src, nil, sink, Options{Logger: quiet, Instrument: rec}).Run(context.Background(), "in", "out")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 7, res.RowsRead)
	assert.Equal(t, 7, res.RowsWritten)
	assert.Equal(t, 3, res.BatchesWritten)
	assert.NotEmpty(t, res.RunID)
	assert.Nil(t, res.Err)

	require.Len(t, sink.w.batches, 3)
	assert.Equal(t, []int{3, 3, 1}, []int{sink.w.batches[0].Rows(), sink.w.batches[1].Rows(), sink.w.batches[2].Rows()})
	assert.True(t, sink.w.closed)
	assert.True(t, src.reader.closed)
	assert.Equal(t, len(rec.started), len(rec.finished))
	assert.Contains(t, rec.finished, StageFinalize)
}

func TestRunEmptySourceCreatesWriter(t *testing.T) {
	src := &memSource{schema: pairSchema(), size: 2}
	sink := &memSink{}
	sel := &projectStep{cols: []string{"name"}}
	res, err := NewOrchestrator(src, NewChain(sel), sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Batches)
	require.NotNil(t, sink.w)
	assert.Equal(t, []string{"name"}, sink.w.schema.Names())
	assert.True(t, sink.w.closed)
}

func TestRunOpenFailure(t *testing.T) {
	src := &memSource{openErr: &SourceNotFoundError{Location: "in"}}
	sink := &memSink{}
	res, err := NewOrchestrator(src, nil, sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRead, se.Stage)
	assert.Equal(t, -1, se.BatchIndex)
	var nf *SourceNotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateReading, res.FailedIn)
	assert.Nil(t, sink.w)
}

func TestRunValidationFailureNeverCreatesWriter(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(3), size: 2}
	sink := &memSink{}
	o := NewOrchestrator(src, NewChain(&projectStep{cols: []string{"title"}}), sink, Options{Logger: quiet})
	res, err := o.Run(context.Background(), "in", "out")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageValidate, se.Stage)
	var uc *UnknownColumnError
	assert.ErrorAs(t, err, &uc)
	assert.Same(t, se, res.Err)
	assert.Nil(t, sink.w)
	assert.Equal(t, 0, res.Batches)
}

func TestRunExpectMismatch(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(1), size: 2}
	o := NewOrchestrator(src, nil, &memSink{}, Options{Logger: quiet, Expect: []ColumnSchema{{Name: "id", Type: KindString}}})
	_, err := o.Run(context.Background(), "in", "out")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageValidate, se.Stage)
}

func TestRunTransformFailureKeepsCommittedBatches(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(6), size: 2}
	sink := &memSink{}
	res, err := NewOrchestrator(src, NewChain(&failAt{batch: 1}), sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageTransform, se.Stage)
	assert.Equal(t, 1, se.BatchIndex)
	var te *TransformationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "fail_at", te.Transformer)
	assert.Equal(t, StateTransforming, res.FailedIn)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, [][]any{{int64(1), "n"}, {int64(2), "n"}}, sink.w.rows())
	assert.True(t, sink.w.closed, "writer is closed after a failure")
	assert.True(t, src.reader.closed)
}

func TestRunFailureAbortsAborter(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(4), size: 2}
	sink := &memSink{abortable: true}
	_, err := NewOrchestrator(src, NewChain(&failAt{batch: 1}), sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	require.Error(t, err)
	assert.True(t, sink.w.aborted)
	assert.False(t, sink.w.closed)
}

func TestRunWriteAndCloseFailures(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(4), size: 2}
	sink := &memSink{writeErr: map[int]error{1: &DestinationWriteError{Location: "out", Err: errors.New("disk full")}}}
	res, err := NewOrchestrator(src, nil, sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageWrite, se.Stage)
	assert.Equal(t, 1, se.BatchIndex)
	assert.Equal(t, StateWriting, res.FailedIn)

	src = &memSource{schema: pairSchema(), rows: pairRows(1), size: 2}
	sink = &memSink{closeErr: errors.New("flush failed")}
	res, err = NewOrchestrator(src, nil, sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFinalize, se.Stage)
	assert.False(t, res.OK())
}

func TestRunReadFailureMidStream(t *testing.T) {
	src := &memSource{schema: pairSchema(), rows: pairRows(6), size: 2, readErr: map[int]error{2: &SchemaInconsistencyError{Batch: 2, Row: 0, Column: "id"}}}
	sink := &memSink{}
	res, err := NewOrchestrator(src, nil, sink, Options{Logger: quiet}).Run(context.Background(), "in", "out")
	var si *SchemaInconsistencyError
	require.ErrorAs(t, err, &si)
	assert.Equal(t, 2, res.Err.BatchIndex)
	assert.Equal(t, 4, res.RowsWritten)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &memSource{schema: pairSchema(), rows: pairRows(2), size: 1}
	_, err := NewOrchestrator(src, nil, &memSink{}, Options{Logger: quiet}).Run(ctx, "in", "out")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChainApplyWrapsErrors(t *testing.T) {
	b := NewBatch(pairSchema())
	_, err := NewChain(&failAt{}).Apply(context.Background(), b, 4)
	var te *TransformationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 4, te.BatchIndex)
	assert.Equal(t, 0, (*Chain)(nil).Len())
}

// projectStep is a minimal schema-mapping step.
type projectStep struct{ cols []string }

func (p *projectStep) Name() string { return "project" }

func (p *projectStep) OutputSchema(in Schema) (Schema, error) {
	out := Schema{}
	for _, c := range p.cols {
		cs, ok := in.Column(c)
		if !ok {
			return in, &UnknownColumnError{Column: c, Transformer: p.Name()}
		}
		out.Columns = append(out.Columns, cs)
	}
	return out, nil
}

func (p *projectStep) Apply(ctx context.Context, b *Batch) (*Batch, error) {
	return b.Project(p.cols)
}
