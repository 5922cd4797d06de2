package validate

import (
	"context"
	"fmt"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type Range struct {
	Column string
	Min    *float64
	Max    *float64
}

func (t *Range) Name() string { return "validate_range" }

func (t *Range) OutputSchema(in etl.Schema) (etl.Schema, error) {
	if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
		return in, fmt.Errorf("%s: min %v above max %v", t.Name(), *t.Min, *t.Max)
	}
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindInt, etl.KindFloat)
}

func (t *Range) out(v float64) bool {
	return (t.Min != nil && v < *t.Min) || (t.Max != nil && v > *t.Max)
}

func (t *Range) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	col, _ := b.ColumnByName(t.Column)
	var bad int
	switch c := col.(type) {
	case *etl.FloatColumn:
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.Get(i); ok && t.out(v) {
				bad++
			}
		}
	case *etl.IntColumn:
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.Get(i); ok && t.out(float64(v)) {
				bad++
			}
		}
	}
	if bad > 0 {
		return nil, fmt.Errorf("validate_range: column %s has %d out-of-range values", t.Column, bad)
	}
	return b, nil
}
