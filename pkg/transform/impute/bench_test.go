package impute

import (
	"context"
	"testing"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

func makeLargeFloatBatch(n int) *etl.Batch {
	s := etl.Schema{Columns: []etl.ColumnSchema{{Name: "x", Type: etl.KindFloat, Nullable: true}}}
	b := etl.NewBatch(s)
	for i := 0; i < n; i++ {
		b.AppendNullRow()
	}
	col, _ := b.ColumnByName("x")
	c := col.(*etl.FloatColumn)
	for i := 0; i < n; i += 2 {
		c.Set(i, float64(i%10))
	}
	return b
}

func BenchmarkImputeMean(b *testing.B) {
	for n := 0; n < b.N; n++ {
		b.StopTimer()
		batch := makeLargeFloatBatch(10000)
		b.StartTimer()
		if _, err := (&Mean{Column: "x"}).Apply(context.Background(), batch); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkImputeMedian(b *testing.B) {
	for n := 0; n < b.N; n++ {
		b.StopTimer()
		batch := makeLargeFloatBatch(10000)
		b.StartTimer()
		if _, err := (&Median{Column: "x"}).Apply(context.Background(), batch); err != nil {
			b.Fatal(err)
		}
	}
}
