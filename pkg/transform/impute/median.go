package impute

import (
	"context"
	"slices"
	"sync"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Median fills nulls with the median of the batch's non-null values. A
// batch without values is filled from the median of the last batch that
// had some.
type Median struct {
	Column string

	mu   sync.Mutex
	last any
}

func (t *Median) Name() string { return "impute_median" }

func (t *Median) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindInt, etl.KindFloat)
}

func (t *Median) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	col, _ := b.ColumnByName(t.Column)
	switch c := col.(type) {
	case *etl.FloatColumn:
		vals := make([]float64, 0, c.Len())
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.Get(i); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) > 0 {
			t.last = medianFloat(vals)
		}
		if len(vals) == c.Len() {
			return b, nil
		}
		med, ok := t.last.(float64)
		if !ok {
			return nil, noValuesError(t.Name(), t.Column)
		}
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				c.Set(i, med)
			}
		}
	case *etl.IntColumn:
		vals := make([]int64, 0, c.Len())
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.Get(i); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) > 0 {
			t.last = medianInt(vals)
		}
		if len(vals) == c.Len() {
			return b, nil
		}
		med, ok := t.last.(int64)
		if !ok {
			return nil, noValuesError(t.Name(), t.Column)
		}
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				c.Set(i, med)
			}
		}
	}
	return b, nil
}

func medianFloat(vals []float64) float64 {
	slices.Sort(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2
	}
	return vals[mid]
}

// medianInt truncates the midpoint of an even count toward the lower value.
func medianInt(vals []int64) int64 {
	slices.Sort(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		a, b := vals[mid-1], vals[mid]
		return a + (b-a)/2
	}
	return vals[mid]
}
