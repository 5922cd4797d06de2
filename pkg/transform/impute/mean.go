package impute

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Mean fills nulls with the mean of the batch's non-null values. Integer
// columns get the rounded mean. Mean is stateful: it keeps a running sum
// over every batch it has seen and fills from it when a batch holds no
// values of its own. With nothing seen yet, Apply fails.
type Mean struct {
	Column string

	mu  sync.Mutex
	sum float64
	n   int
}

func (t *Mean) Name() string { return "impute_mean" }

func (t *Mean) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindInt, etl.KindFloat)
}

func (t *Mean) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	col, _ := b.ColumnByName(t.Column)
	var sum float64
	var n, nulls int
	for i := 0; i < col.Len(); i++ {
		switch v := col.Value(i).(type) {
		case float64:
			sum += v
			n++
		case int64:
			sum += float64(v)
			n++
		default:
			nulls++
		}
	}
	t.sum += sum
	t.n += n
	if nulls == 0 {
		return b, nil
	}
	if n == 0 {
		if t.n == 0 {
			return nil, noValuesError(t.Name(), t.Column)
		}
		sum, n = t.sum, t.n
	}
	mean := sum / float64(n)
	switch c := col.(type) {
	case *etl.FloatColumn:
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				c.Set(i, mean)
			}
		}
	case *etl.IntColumn:
		m := int64(math.Round(mean))
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				c.Set(i, m)
			}
		}
	}
	return b, nil
}

func noValuesError(transformer, column string) error {
	return fmt.Errorf("%s: column %q has no values to fill from yet", transformer, column)
}
