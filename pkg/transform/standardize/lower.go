package standardize

import (
	"context"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type Lower struct{ Column string }

func (t *Lower) Name() string { return "lower" }

func (t *Lower) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindString)
}

func (t *Lower) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	for _, c := range targets(b, []string{t.Column}) {
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.Get(i); ok {
				c.Set(i, strings.ToLower(v))
			}
		}
	}
	return b, nil
}
