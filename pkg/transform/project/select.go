// Package project reshapes the column set of a batch.
package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Select keeps Columns, in that order.
type Select struct {
	Columns []string
}

func (t *Select) Name() string { return "select" }

func (t *Select) OutputSchema(in etl.Schema) (etl.Schema, error) {
	if len(t.Columns) == 0 {
		return in, fmt.Errorf("%s: no columns", t.Name())
	}
	seen := make(map[string]bool, len(t.Columns))
	out := etl.Schema{Columns: make([]etl.ColumnSchema, 0, len(t.Columns))}
	for _, n := range t.Columns {
		if seen[n] {
			return in, fmt.Errorf("%s: column %q listed twice", t.Name(), n)
		}
		seen[n] = true
		c, ok := in.Column(n)
		if !ok {
			return in, &etl.UnknownColumnError{Column: n, Transformer: t.Name()}
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}

func (t *Select) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	out, err := b.Project(t.Columns)
	var uc *etl.UnknownColumnError
	if errors.As(err, &uc) {
		uc.Transformer = t.Name()
	}
	return out, err
}
