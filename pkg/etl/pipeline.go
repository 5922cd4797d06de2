package etl

import (
	"context"
	"errors"
)

// Transformer maps one batch to the next. Implementations must not keep
// state across batches unless documented as stateful, and then only in
// their own accumulator.
type Transformer interface {
	Name() string
	Apply(ctx context.Context, b *Batch) (*Batch, error)
}

// SchemaMapper is implemented by transformers that can derive their output
// schema up front, so column problems surface before any data is written.
type SchemaMapper interface {
	OutputSchema(in Schema) (Schema, error)
}

// Chain composes transformers in caller order.
type Chain struct {
	steps []Transformer
}

func NewChain(steps ...Transformer) *Chain { return &Chain{steps: steps} }

func (c *Chain) Add(t Transformer) *Chain {
	c.steps = append(c.steps, t)
	return c
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.steps)
}

func (c *Chain) Steps() []Transformer {
	out := make([]Transformer, len(c.steps))
	copy(out, c.steps)
	return out
}

// Apply runs every step on b. A step failure is returned as a
// *TransformationError tagged with batchIdx.
func (c *Chain) Apply(ctx context.Context, b *Batch, batchIdx int) (*Batch, error) {
	return c.apply(ctx, b, batchIdx, nopInstrument{})
}

func (c *Chain) apply(ctx context.Context, b *Batch, batchIdx int, ins Instrument) (*Batch, error) {
	if c == nil {
		return b, nil
	}
	cur := b
	for _, t := range c.steps {
		if ins != nil {
			ins.StageStarted(StageTransform, batchIdx, t.Name())
		}
		out, d, err := timed(func() (*Batch, error) { return t.Apply(ctx, cur) })
		if ins != nil {
			ins.StageFinished(StageTransform, batchIdx, t.Name(), d, err)
		}
		if err != nil {
			var te *TransformationError
			if errors.As(err, &te) {
				return nil, err
			}
			return nil, &TransformationError{Transformer: t.Name(), BatchIndex: batchIdx, Err: err}
		}
		if out == nil {
			out = NewBatch(cur.Schema())
		}
		cur = out
	}
	return cur, nil
}
