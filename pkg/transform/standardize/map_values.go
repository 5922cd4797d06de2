package standardize

import (
	"context"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// MapValues replaces exact string matches, e.g. rating aliases.
type MapValues struct {
	Column string
	Map    map[string]string
}

func (t *MapValues) Name() string { return "map_values" }

func (t *MapValues) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindString)
}

func (t *MapValues) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	for _, c := range targets(b, []string{t.Column}) {
		for i := 0; i < c.Len(); i++ {
			v, ok := c.Get(i)
			if !ok {
				continue
			}
			if nv, ok := t.Map[v]; ok {
				c.Set(i, nv)
			}
		}
	}
	return b, nil
}
