package outliers

import (
	"context"
	"testing"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

func TestCap(t *testing.T) {
	b := etl.NewBatch(etl.Schema{Columns: []etl.ColumnSchema{
		{Name: "release_year", Type: etl.KindInt, Nullable: true},
		{Name: "score", Type: etl.KindFloat, Nullable: true},
	}})
	for _, r := range [][]any{{int64(1890), 11.5}, {int64(2021), nil}, {nil, -2.0}} {
		if err := b.AppendRow(r...); err != nil {
			t.Fatal(err)
		}
	}
	lo, hi := 1900.5, 2030.0
	if _, err := (&Cap{Column: "release_year", Min: &lo, Max: &hi}).Apply(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if b.Value(0, "release_year") != int64(1901) || b.Value(1, "release_year") != int64(2021) || b.Value(2, "release_year") != nil {
		t.Fatalf("int cap: %v %v %v", b.Value(0, "release_year"), b.Value(1, "release_year"), b.Value(2, "release_year"))
	}
	zero, ten := 0.0, 10.0
	if _, err := (&Cap{Column: "score", Min: &zero, Max: &ten}).Apply(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if b.Value(0, "score") != 10.0 || b.Value(2, "score") != 0.0 {
		t.Fatalf("float cap: %v %v", b.Value(0, "score"), b.Value(2, "score"))
	}
	if _, err := (&Cap{Column: "missing"}).Apply(context.Background(), b); err == nil {
		t.Fatal("expected unknown column error")
	}
}
