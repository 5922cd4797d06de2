package standardize

import (
	"context"
	"errors"
	"testing"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

func stringBatch(vals ...any) *etl.Batch {
	s := etl.Schema{Columns: []etl.ColumnSchema{{Name: "s", Type: etl.KindString, Nullable: true}}}
	b := etl.NewBatch(s)
	for _, v := range vals {
		_ = b.AppendRow(v)
	}
	return b
}

func TestTrimAndLower(t *testing.T) {
	b := stringBatch("  Foo  ", "BAR", nil)
	col, _ := b.ColumnByName("s")
	c := col.(*etl.StringColumn)

	tf1 := &Trim{Column: "s"}
	if _, err := tf1.Apply(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	v, _ := c.Get(0)
	if v != "Foo" {
		t.Fatalf("trim failed, got %q", v)
	}

	tf2 := &Lower{Column: "s"}
	if _, err := tf2.Apply(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	v0, _ := c.Get(0)
	v1, _ := c.Get(1)
	if v0 != "foo" || v1 != "bar" {
		t.Fatalf("lower failed, got %q %q", v0, v1)
	}
	if !c.IsNull(2) {
		t.Fatal("null must stay null")
	}

	tf3, err := NewRegexReplace("s", "o+", "O")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tf3.Apply(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	v0, _ = c.Get(0)
	if v0 != "fO" {
		t.Fatalf("regex replace failed, got %q", v0)
	}

	tf4 := &MapValues{Column: "s", Map: map[string]string{"bar": "baz"}}
	if _, err := tf4.Apply(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	v1, _ = c.Get(1)
	if v1 != "baz" {
		t.Fatalf("map values failed, got %q", v1)
	}
}

func TestNormalize(t *testing.T) {
	b := stringBatch(" Ana ", "BOB", "ÉMILE\t", nil)
	out, err := (&Normalize{}).Apply(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"ana", "bob", "émile", nil}
	for i, w := range want {
		if got := out.Value(i, "s"); got != w {
			t.Fatalf("row %d: want %q got %q", i, w, got)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{"  Blood & Water ", "KOTA FACTORY", "José Luis Ucha", "İstanbul", "ǅemal", "", " Straße "}
	once, err := (&Normalize{}).Apply(context.Background(), stringBatch(inputs...))
	if err != nil {
		t.Fatal(err)
	}
	onceVals := make([]any, once.Rows())
	for i := range onceVals {
		onceVals[i] = once.Value(i, "s")
	}
	twice, err := (&Normalize{}).Apply(context.Background(), once)
	if err != nil {
		t.Fatal(err)
	}
	for i := range onceVals {
		if twice.Value(i, "s") != onceVals[i] {
			t.Fatalf("row %d changed on second pass: %q -> %q", i, onceVals[i], twice.Value(i, "s"))
		}
	}
}

func TestNormalizeLeavesOtherKinds(t *testing.T) {
	b := etl.NewBatch(etl.Schema{Columns: []etl.ColumnSchema{
		{Name: "title", Type: etl.KindString},
		{Name: "year", Type: etl.KindInt},
	}})
	_ = b.AppendRow(" Ganglands ", int64(2021))
	out, err := (&Normalize{}).Apply(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value(0, "title") != "ganglands" || out.Value(0, "year") != int64(2021) {
		t.Fatalf("unexpected row %v", out.Row(0))
	}
	if _, err := (&Normalize{Columns: []string{"year"}}).OutputSchema(b.Schema()); err == nil {
		t.Fatal("expected kind error for a non-string column")
	}
}

func TestUnknownColumn(t *testing.T) {
	_, err := (&Trim{Column: "missing"}).Apply(context.Background(), stringBatch("x"))
	var uc *etl.UnknownColumnError
	if !errors.As(err, &uc) || uc.Column != "missing" {
		t.Fatalf("expected UnknownColumnError, got %v", err)
	}
}
