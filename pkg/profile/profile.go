// Package profile collects per-column statistics while batches stream past.
package profile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type NumStats struct {
	Count int     `json:"count"`
	Nulls int     `json:"nulls"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
}

func (s *NumStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

type BoolStats struct {
	Count int `json:"count"`
	Nulls int `json:"nulls"`
	True  int `json:"true"`
	False int `json:"false"`
}

type StringStats struct {
	Count int
	Nulls int
	Freqs map[string]int
}

// ValueCount is one entry of a top-k list.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Top returns the k most frequent values, most frequent first; ties are
// ordered by value. k <= 0 returns every value.
func (s *StringStats) Top(k int) []ValueCount {
	out := make([]ValueCount, 0, len(s.Freqs))
	for v, n := range s.Freqs {
		out = append(out, ValueCount{v, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

type ColumnProfile struct {
	Name string
	Kind etl.Kind
	Num  *NumStats
	Bool *BoolStats
	Str  *StringStats
}

// Collector is a stateful pass-through transformer: batches leave unchanged
// while the collector accumulates statistics over every batch of a run.
// The schema is fixed by the first batch seen.
type Collector struct {
	mu      sync.Mutex
	cols    []ColumnProfile
	schema  etl.Schema
	started bool
	topK    int
	rows    int
	batches int
}

var _ etl.Transformer = (*Collector)(nil)

func NewCollector(topK int) *Collector {
	return &Collector{topK: topK}
}

func (c *Collector) Name() string { return "profile" }

func (c *Collector) init(schema etl.Schema) {
	c.schema = schema
	c.started = true
	c.cols = make([]ColumnProfile, len(schema.Columns))
	for i, cs := range schema.Columns {
		cp := ColumnProfile{Name: cs.Name, Kind: cs.Type}
		switch cs.Type {
		case etl.KindFloat, etl.KindInt:
			cp.Num = &NumStats{Min: math.Inf(1), Max: math.Inf(-1)}
		case etl.KindBool:
			cp.Bool = &BoolStats{}
		default:
			cp.Str = &StringStats{Freqs: make(map[string]int)}
		}
		c.cols[i] = cp
	}
}

func (c *Collector) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.init(b.Schema())
	} else if !c.schema.Equal(b.Schema()) {
		return nil, fmt.Errorf("profile: batch schema %v differs from %v", b.Schema().Names(), c.schema.Names())
	}
	c.batches++
	c.rows += b.Rows()
	for k := range c.cols {
		c.consume(&c.cols[k], b.ColumnAt(k))
	}
	return b, nil
}

func (c *Collector) consume(cp *ColumnProfile, col etl.Column) {
	switch col := col.(type) {
	case *etl.FloatColumn:
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Get(i)
			if !ok {
				cp.Num.Nulls++
				continue
			}
			cp.Num.add(v)
		}
	case *etl.IntColumn:
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Get(i)
			if !ok {
				cp.Num.Nulls++
				continue
			}
			cp.Num.add(float64(v))
		}
	case *etl.BoolColumn:
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Get(i)
			if !ok {
				cp.Bool.Nulls++
				continue
			}
			cp.Bool.Count++
			if v {
				cp.Bool.True++
			} else {
				cp.Bool.False++
			}
		}
	case *etl.StringColumn:
		for i := 0; i < col.Len(); i++ {
			v, ok := col.Get(i)
			if !ok {
				cp.Str.Nulls++
				continue
			}
			cp.Str.Count++
			if c.topK > 0 {
				cp.Str.Freqs[v]++
			}
		}
	}
}

func (s *NumStats) add(v float64) {
	s.Count++
	s.Sum += v
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
}

// Rows returns the number of rows seen so far.
func (c *Collector) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Columns returns a snapshot of the column profiles.
func (c *Collector) Columns() []ColumnProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ColumnProfile, len(c.cols))
	copy(out, c.cols)
	return out
}
