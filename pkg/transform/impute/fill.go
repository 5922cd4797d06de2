// Package impute fills null cells. Statistics are computed over the batch
// being filled, never across batches.
package impute

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type Strategy string

const (
	StrategyLiteral Strategy = "literal"
	StrategyMean    Strategy = "mean"
	StrategyMedian  Strategy = "median"
	StrategyMode    Strategy = "mode"
)

// ParseStrategy accepts the strategy names case-insensitively; "constant"
// and "default" are aliases of literal.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "literal", "constant", "default":
		return StrategyLiteral, nil
	case "mean":
		return StrategyMean, nil
	case "median":
		return StrategyMedian, nil
	case "mode":
		return StrategyMode, nil
	}
	return "", fmt.Errorf("unknown imputation strategy: %s", s)
}

// supports reports whether the strategy can fill a column of kind k.
func (s Strategy) supports(k etl.Kind) bool {
	switch s {
	case StrategyMean, StrategyMedian:
		return k.Numeric()
	case StrategyMode:
		return k == etl.KindString || k.Numeric() || k == etl.KindBool
	}
	return true
}

func (s Strategy) column(name string, literal any) etl.Transformer {
	switch s {
	case StrategyMean:
		return &Mean{Column: name}
	case StrategyMedian:
		return &Median{Column: name}
	case StrategyMode:
		return &Mode{Column: name}
	}
	return &Constant{Column: name, Value: literal}
}

// FillMissing fills nulls in Columns, or in every column the strategy
// supports when Columns is empty. The per-column fillers live as long as the
// FillMissing value, so the statistic strategies carry their running state
// from batch to batch.
type FillMissing struct {
	Columns  []string
	Strategy Strategy
	Literal  any

	mu      sync.Mutex
	fillers map[string]etl.Transformer
}

func NewFillMissing(cols []string, strategy string, literal any) (*FillMissing, error) {
	s, err := ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if s == StrategyLiteral && literal == nil {
		return nil, fmt.Errorf("literal imputation needs a value")
	}
	return &FillMissing{Columns: cols, Strategy: s, Literal: literal}, nil
}

func (t *FillMissing) Name() string { return "fill_missing" }

func (t *FillMissing) filler(name string) etl.Transformer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.fillers[name]; ok {
		return f
	}
	if t.fillers == nil {
		t.fillers = map[string]etl.Transformer{}
	}
	f := t.Strategy.column(name, t.Literal)
	t.fillers[name] = f
	return f
}

func (t *FillMissing) steps(s etl.Schema) ([]etl.Transformer, error) {
	if _, err := ParseStrategy(string(t.Strategy)); err != nil {
		return nil, err
	}
	var out []etl.Transformer
	if len(t.Columns) == 0 {
		for _, c := range s.Columns {
			if !t.Strategy.supports(c.Type) {
				continue
			}
			if t.Strategy == StrategyLiteral {
				// columns the literal cannot represent are left alone
				if _, err := coerce(c.Type, t.Literal); err != nil {
					continue
				}
			}
			out = append(out, t.filler(c.Name))
		}
		return out, nil
	}
	for _, name := range t.Columns {
		c, ok := s.Column(name)
		if !ok {
			return nil, &etl.UnknownColumnError{Column: name, Transformer: t.Name()}
		}
		if !t.Strategy.supports(c.Type) {
			return nil, fmt.Errorf("%s: strategy %s cannot fill %s column %q", t.Name(), t.Strategy, c.Type, name)
		}
		out = append(out, t.filler(name))
	}
	return out, nil
}

func (t *FillMissing) OutputSchema(in etl.Schema) (etl.Schema, error) {
	steps, err := t.steps(in)
	if err != nil {
		return in, err
	}
	for _, st := range steps {
		if m, ok := st.(etl.SchemaMapper); ok {
			if _, err := m.OutputSchema(in); err != nil {
				return in, err
			}
		}
	}
	return in, nil
}

func (t *FillMissing) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	steps, err := t.steps(b.Schema())
	if err != nil {
		return nil, err
	}
	for _, st := range steps {
		if b, err = st.Apply(ctx, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}
