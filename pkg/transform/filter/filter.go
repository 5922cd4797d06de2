// Package filter drops rows from a batch. Filters never fail on an empty
// result; the empty batch flows on to the writer.
package filter

import (
	"context"
	"fmt"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Rows keeps the rows for which Predicate returns true.
type Rows struct {
	Label     string
	Predicate func(etl.Row) bool
}

func (t *Rows) Name() string {
	if t.Label != "" {
		return "filter:" + t.Label
	}
	return "filter"
}

func (t *Rows) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if t.Predicate == nil {
		return nil, fmt.Errorf("%s: nil predicate", t.Name())
	}
	keep := make([]int, 0, b.Rows())
	for i := 0; i < b.Rows(); i++ {
		if t.Predicate(b.Row(i)) {
			keep = append(keep, i)
		}
	}
	return take(b, keep), nil
}

// take avoids copying when every row survives.
func take(b *etl.Batch, keep []int) *etl.Batch {
	if len(keep) == b.Rows() {
		return b
	}
	return b.Take(keep)
}

// DropMissing drops rows with a null in any of Columns, or in any column
// when Columns is empty.
type DropMissing struct {
	Columns []string
}

func (t *DropMissing) Name() string { return "drop_missing" }

func (t *DropMissing) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireColumns(in, t.Name(), t.Columns...)
}

func (t *DropMissing) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	cols := make([]etl.Column, 0, b.Cols())
	if len(t.Columns) == 0 {
		for i := 0; i < b.Cols(); i++ {
			cols = append(cols, b.ColumnAt(i))
		}
	} else {
		for _, n := range t.Columns {
			c, _ := b.ColumnByName(n)
			cols = append(cols, c)
		}
	}
	keep := make([]int, 0, b.Rows())
rows:
	for i := 0; i < b.Rows(); i++ {
		for _, c := range cols {
			if c.IsNull(i) {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	return take(b, keep), nil
}

// MissingThreshold keeps rows with at least int(Threshold × columns)
// non-null cells.
type MissingThreshold struct {
	Threshold float64
}

func NewMissingThreshold(threshold float64) (*MissingThreshold, error) {
	t := &MissingThreshold{Threshold: threshold}
	if err := t.check(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *MissingThreshold) Name() string { return "missing_threshold" }

func (t *MissingThreshold) check() error {
	if t.Threshold < 0 || t.Threshold > 1 {
		return fmt.Errorf("%s: threshold %v outside [0, 1]", t.Name(), t.Threshold)
	}
	return nil
}

func (t *MissingThreshold) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, t.check()
}

func (t *MissingThreshold) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	need := int(t.Threshold * float64(b.Cols()))
	keep := make([]int, 0, b.Rows())
	for i := 0; i < b.Rows(); i++ {
		n := 0
		for c := 0; c < b.Cols(); c++ {
			if !b.ColumnAt(c).IsNull(i) {
				n++
			}
		}
		if n >= need {
			keep = append(keep, i)
		}
	}
	return take(b, keep), nil
}
