package parquetio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

func makeBatch(rows int) *etl.Batch {
	s := etl.Schema{Columns: []etl.ColumnSchema{
		{Name: "show_id", Type: etl.KindString, Nullable: true},
		{Name: "release_year", Type: etl.KindInt, Nullable: true},
		{Name: "score", Type: etl.KindFloat, Nullable: true},
		{Name: "is_movie", Type: etl.KindBool, Nullable: true},
	}}
	b := etl.NewBatch(s)
	for i := 0; i < rows; i++ {
		b.AppendNullRow()
		_ = b.SetCell(i, "show_id", "s"+string(rune('a'+i%26)))
		_ = b.SetCell(i, "release_year", int64(2000+i%20))
		if i%3 != 0 {
			_ = b.SetCell(i, "score", float64(i)/2)
		}
		_ = b.SetCell(i, "is_movie", i%2 == 0)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "out", "titles.parquet")
	in := makeBatch(25)

	w, err := Sink{}.Create(ctx, p, in.Schema())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ctx, in.Take([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})); err != nil {
		t.Fatal(err)
	}
	rest := make([]int, 0, 15)
	for i := 10; i < 25; i++ {
		rest = append(rest, i)
	}
	if err := w.Write(ctx, in.Take(rest)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("destination must not exist before Close, stat err = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Source{Options: ReaderOptions{BatchSize: 10}}.Open(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	if !r.Schema().Equal(in.Schema()) {
		t.Fatalf("schema mismatch: %+v", r.Schema())
	}
	row := 0
	batches := 0
	for {
		b, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		batches++
		for i := 0; i < b.Rows(); i++ {
			want, got := in.Values(row), b.Values(i)
			for c := range want {
				if want[c] != got[c] {
					t.Fatalf("row %d col %d: want %v got %v", row, c, want[c], got[c])
				}
			}
			row++
		}
	}
	if row != 25 || batches != 3 {
		t.Fatalf("expected 25 rows in 3 batches, got %d rows in %d batches", row, batches)
	}
}

func TestAbortLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := filepath.Join(dir, "aborted.parquet")
	in := makeBatch(5)
	w, err := Sink{}.Create(ctx, p, in.Schema())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ctx, in); err != nil {
		t.Fatal(err)
	}
	if err := w.(etl.Aborter).Abort(); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, found %d entries", len(entries))
	}
}

func TestSourceNotFound(t *testing.T) {
	_, err := Source{}.Open(context.Background(), filepath.Join(t.TempDir(), "missing.parquet"))
	var nf *etl.SourceNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected SourceNotFoundError, got %v", err)
	}
}

func TestBadColumnName(t *testing.T) {
	s := etl.Schema{Columns: []etl.ColumnSchema{{Name: "date added", Type: etl.KindString}}}
	_, err := Sink{}.Create(context.Background(), filepath.Join(t.TempDir(), "x.parquet"), s)
	var dw *etl.DestinationWriteError
	if !errors.As(err, &dw) {
		t.Fatalf("expected DestinationWriteError, got %v", err)
	}
}

func BenchmarkParquetWrite(b *testing.B) {
	in := makeBatch(50000)
	dir := b.TempDir()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w, err := Sink{}.Create(ctx, filepath.Join(dir, "bench.parquet"), in.Schema())
		if err != nil {
			b.Fatal(err)
		}
		if err := w.Write(ctx, in); err != nil {
			b.Fatal(err)
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
