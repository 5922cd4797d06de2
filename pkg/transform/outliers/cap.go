// Package outliers clamps numeric values into a range.
package outliers

import (
	"context"
	"fmt"
	"math"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type Cap struct {
	Column string
	Min    *float64
	Max    *float64
}

func (t *Cap) Name() string { return "cap_range" }

func (t *Cap) OutputSchema(in etl.Schema) (etl.Schema, error) {
	if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
		return in, fmt.Errorf("%s: min %v above max %v", t.Name(), *t.Min, *t.Max)
	}
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindInt, etl.KindFloat)
}

func (t *Cap) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	col, _ := b.ColumnByName(t.Column)
	switch c := col.(type) {
	case *etl.FloatColumn:
		for i := 0; i < c.Len(); i++ {
			v, ok := c.Get(i)
			if !ok {
				continue
			}
			if t.Min != nil && v < *t.Min {
				v = *t.Min
			}
			if t.Max != nil && v > *t.Max {
				v = *t.Max
			}
			c.Set(i, v)
		}
	case *etl.IntColumn:
		for i := 0; i < c.Len(); i++ {
			v, ok := c.Get(i)
			if !ok {
				continue
			}
			if t.Min != nil && float64(v) < *t.Min {
				v = int64(math.Ceil(*t.Min))
			}
			if t.Max != nil && float64(v) > *t.Max {
				v = int64(math.Floor(*t.Max))
			}
			c.Set(i, v)
		}
	}
	return b, nil
}
