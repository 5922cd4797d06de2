// Package validate fails a batch whose values break a column rule.
package validate

import (
	"context"
	"fmt"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// InSet requires every non-null string cell to be one of Values.
type InSet struct {
	Column string
	Values map[string]struct{}
}

func NewInSet(col string, vals []string) *InSet {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return &InSet{Column: col, Values: m}
}

func (t *InSet) Name() string { return "validate_in" }

func (t *InSet) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindString)
}

func (t *InSet) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	col, _ := b.ColumnByName(t.Column)
	sc := col.(*etl.StringColumn)
	var bad int
	first := -1
	for i := 0; i < sc.Len(); i++ {
		v, ok := sc.Get(i)
		if !ok {
			continue
		}
		if _, ok := t.Values[v]; !ok {
			if first < 0 {
				first = i
			}
			bad++
		}
	}
	if bad > 0 {
		v, _ := sc.Get(first)
		return nil, fmt.Errorf("validate_in: column %s has %d values outside allowed set (first %q at row %d)", t.Column, bad, v, first)
	}
	return b, nil
}
