package etl

import (
	"errors"
	"testing"
)

func titleSchema() Schema {
	return Schema{Columns: []ColumnSchema{
		{Name: "show_id", Type: KindString},
		{Name: "release_year", Type: KindInt, Nullable: true},
		{Name: "score", Type: KindFloat, Nullable: true},
		{Name: "kids", Type: KindBool, Nullable: true},
	}}
}

func TestAppendRowAndValues(t *testing.T) {
	b := NewBatch(titleSchema())
	if err := b.AppendRow("s1", 2020, 7, true); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendRow("s2", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if b.Rows() != 2 || b.Cols() != 4 {
		t.Fatalf("shape %dx%d", b.Rows(), b.Cols())
	}
	if b.Value(0, "release_year") != int64(2020) || b.Value(0, "score") != 7.0 || b.Value(0, "kids") != true {
		t.Fatalf("coercion failed: %v", b.Values(0))
	}
	r := b.Row(1)
	if r["show_id"] != "s2" || r["release_year"] != nil || r["kids"] != nil {
		t.Fatalf("row 1 = %v", r)
	}
	if b.Value(0, "nope") != nil {
		t.Fatal("unknown column must read as nil")
	}
	if err := b.AppendRow("s3"); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestSetCellRejectsBadValues(t *testing.T) {
	b := NewBatch(titleSchema())
	b.AppendNullRow()
	if err := b.SetCell(0, "release_year", 20.5); err == nil {
		t.Fatal("fractional float into int column must fail")
	}
	if err := b.SetCell(0, "kids", "yes"); err == nil {
		t.Fatal("string into bool column must fail")
	}
	var uc *UnknownColumnError
	if err := b.SetCell(0, "rating", "PG"); !errors.As(err, &uc) {
		t.Fatalf("expected UnknownColumnError, got %v", err)
	}
	if err := b.SetCell(0, "show_id", int64(7)); err != nil || b.Value(0, "show_id") != "7" {
		t.Fatalf("int into string column: %v %v", err, b.Value(0, "show_id"))
	}
}

func TestTakeAndProject(t *testing.T) {
	b := NewBatch(titleSchema())
	for i, id := range []string{"s1", "s2", "s3"} {
		if err := b.AppendRow(id, 2000+i, nil, i%2 == 0); err != nil {
			t.Fatal(err)
		}
	}
	sub := b.Take([]int{2, 0})
	if sub.Rows() != 2 || sub.Value(0, "show_id") != "s3" || sub.Value(1, "release_year") != int64(2000) {
		t.Fatalf("take: %v %v", sub.Values(0), sub.Values(1))
	}
	if !sub.Schema().Equal(b.Schema()) {
		t.Fatal("take must keep the schema")
	}
	p, err := b.Project([]string{"kids", "show_id"})
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Schema().Names(); len(got) != 2 || got[0] != "kids" || got[1] != "show_id" {
		t.Fatalf("project names %v", got)
	}
	if p.Value(1, "show_id") != "s2" || p.Value(1, "kids") != false {
		t.Fatalf("project row %v", p.Values(1))
	}
	if _, err := b.Project([]string{"rating"}); err == nil {
		t.Fatal("expected unknown column")
	}
}

func TestInferKind(t *testing.T) {
	cases := []struct {
		cells []string
		want  Kind
	}{
		{[]string{"2020", " 2021", ""}, KindInt},
		{[]string{"1.5", "2"}, KindFloat},
		{[]string{"true", "FALSE"}, KindBool},
		{[]string{"90 min", "2"}, KindString},
		{[]string{"1", "true"}, KindString},
		{[]string{"", " "}, KindString},
	}
	for _, c := range cases {
		if got := InferKind(c.cells); got != c.want {
			t.Fatalf("InferKind(%q) = %s, want %s", c.cells, got, c.want)
		}
	}
}

func TestParseCell(t *testing.T) {
	if v, err := ParseCell(KindInt, " 42 "); err != nil || v != int64(42) {
		t.Fatalf("int: %v %v", v, err)
	}
	if v, err := ParseCell(KindString, "  "); err != nil || v != nil {
		t.Fatalf("blank cell must be null: %v %v", v, err)
	}
	if v, _ := ParseCell(KindString, " Ana "); v != " Ana " {
		t.Fatalf("strings are kept verbatim: %q", v)
	}
	if _, err := ParseCell(KindFloat, "n/a"); err == nil {
		t.Fatal("expected parse error")
	}
	if FormatCell(nil) != "" || FormatCell(int64(3)) != "3" || FormatCell(true) != "true" {
		t.Fatal("FormatCell")
	}
}

func TestValidate(t *testing.T) {
	s := titleSchema()
	_, res := Validate(s, []ColumnSchema{{Name: "show_id", Type: KindString}, {Name: "score", Type: KindFloat}}, nil)
	if !res.OK() {
		t.Fatal(res.Err())
	}
	_, res = Validate(s, []ColumnSchema{{Name: "title"}, {Name: "kids", Type: KindInt}}, nil)
	if len(res.Errors) != 2 || res.Errors[0].Column != "title" {
		t.Fatalf("errors %v", res.Errors)
	}
	var uc *UnknownColumnError
	if !errors.As(res.Err(), &uc) {
		t.Fatal("joined error must expose UnknownColumnError")
	}
}
