package project

import (
	"context"
	"fmt"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Rename changes column names, keeping their position and data.
type Rename struct {
	Map map[string]string // old -> new
}

func (t *Rename) Name() string { return "rename" }

func (t *Rename) OutputSchema(in etl.Schema) (etl.Schema, error) {
	out := etl.Schema{Columns: make([]etl.ColumnSchema, len(in.Columns))}
	copy(out.Columns, in.Columns)
	for old := range t.Map {
		if in.Index(old) < 0 {
			return in, &etl.UnknownColumnError{Column: old, Transformer: t.Name()}
		}
	}
	seen := make(map[string]bool, len(out.Columns))
	for i := range out.Columns {
		if n, ok := t.Map[out.Columns[i].Name]; ok {
			out.Columns[i].Name = n
		}
		if seen[out.Columns[i].Name] {
			return in, fmt.Errorf("%s: duplicate column %q", t.Name(), out.Columns[i].Name)
		}
		seen[out.Columns[i].Name] = true
	}
	return out, nil
}

func (t *Rename) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	s, err := t.OutputSchema(b.Schema())
	if err != nil {
		return nil, err
	}
	out := etl.NewBatch(s)
	names := b.Schema().Names()
	for i := 0; i < b.Rows(); i++ {
		out.AppendNullRow()
		for k, n := range names {
			if err := out.SetCell(i, s.Columns[k].Name, b.Value(i, n)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
