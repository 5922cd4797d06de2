package impute

import (
	"context"
	"sync"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Mode fills nulls with the most frequent value of the batch. Ties go to
// the value that reached the top count first. Value counts are kept across
// batches so a batch without values is filled from the running mode.
type Mode struct {
	Column string

	mu     sync.Mutex
	counts map[any]int
	best   any
	bestc  int
}

func (t *Mode) Name() string { return "impute_mode" }

func (t *Mode) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireColumns(in, t.Name(), t.Column)
}

func (t *Mode) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = map[any]int{}
	}

	col, _ := b.ColumnByName(t.Column)
	counts := map[any]int{}
	var best any
	var bestc, nulls int
	for i := 0; i < col.Len(); i++ {
		v := col.Value(i)
		if v == nil {
			nulls++
			continue
		}
		counts[v]++
		if counts[v] > bestc {
			bestc = counts[v]
			best = v
		}
		t.counts[v]++
		if t.counts[v] > t.bestc {
			t.bestc = t.counts[v]
			t.best = v
		}
	}
	if nulls == 0 {
		return b, nil
	}
	if best == nil {
		if t.best == nil {
			return nil, noValuesError(t.Name(), t.Column)
		}
		best = t.best
	}
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			if err := b.SetCell(i, t.Column, best); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}
