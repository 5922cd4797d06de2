package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

func batch(t *testing.T, rows ...[]any) *etl.Batch {
	t.Helper()
	b := etl.NewBatch(etl.Schema{Columns: []etl.ColumnSchema{
		{Name: "type", Type: etl.KindString, Nullable: true},
		{Name: "release_year", Type: etl.KindInt, Nullable: true},
		{Name: "kids", Type: etl.KindBool, Nullable: true},
	}})
	for _, r := range rows {
		if err := b.AppendRow(r...); err != nil {
			t.Fatal(err)
		}
	}
	return b
}

func TestCollectorAccumulatesAcrossBatches(t *testing.T) {
	c := NewCollector(2)
	b1 := batch(t, []any{"Movie", int64(2020), true}, []any{"TV Show", nil, false})
	b2 := batch(t, []any{"Movie", int64(2024), nil}, []any{nil, int64(2021), false})
	for _, b := range []*etl.Batch{b1, b2} {
		out, err := c.Apply(context.Background(), b)
		if err != nil {
			t.Fatal(err)
		}
		if out != b {
			t.Fatal("collector must pass batches through unchanged")
		}
	}
	if c.Rows() != 4 {
		t.Fatalf("rows = %d", c.Rows())
	}
	cols := c.Columns()
	if cols[0].Str.Count != 3 || cols[0].Str.Nulls != 1 {
		t.Fatalf("type stats %+v", cols[0].Str)
	}
	if top := cols[0].Str.Top(1); top[0].Value != "Movie" || top[0].Count != 2 {
		t.Fatalf("top %v", top)
	}
	n := cols[1].Num
	if n.Count != 3 || n.Nulls != 1 || n.Min != 2020 || n.Max != 2024 || n.Sum != 6065 {
		t.Fatalf("year stats %+v", n)
	}
	if cols[2].Bool.True != 1 || cols[2].Bool.False != 2 || cols[2].Bool.Nulls != 1 {
		t.Fatalf("kids stats %+v", cols[2].Bool)
	}
}

func TestCollectorRejectsSchemaChange(t *testing.T) {
	c := NewCollector(0)
	if _, err := c.Apply(context.Background(), batch(t)); err != nil {
		t.Fatal(err)
	}
	other := etl.NewBatch(etl.Schema{Columns: []etl.ColumnSchema{{Name: "x", Type: etl.KindInt}}})
	if _, err := c.Apply(context.Background(), other); err == nil {
		t.Fatal("expected schema error")
	}
}

func TestReports(t *testing.T) {
	c := NewCollector(3)
	if _, err := c.Apply(context.Background(), batch(t, []any{"Movie", nil, true}, []any{"Movie", nil, nil})); err != nil {
		t.Fatal(err)
	}
	txt := c.ReportText()
	for _, want := range []string{"Profile Summary (2 rows, 1 batches)", `• "Movie": 2`, "release_year (int): count=0 nulls=2 min=- max=-"} {
		if !strings.Contains(txt, want) {
			t.Fatalf("text report missing %q:\n%s", want, txt)
		}
	}

	js, err := json.Marshal(c.ReportJSON())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(js), `"min":null`) || !strings.Contains(string(js), `"top":[{"value":"Movie","count":2}]`) {
		t.Fatalf("json report %s", js)
	}

	var buf bytes.Buffer
	if err := c.RenderTable(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "release_year") || !strings.Contains(buf.String(), "Movie (2)") {
		t.Fatalf("table:\n%s", buf.String())
	}
}
