package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wdm0006/catalogetl/pkg/etl"
	"github.com/wdm0006/catalogetl/pkg/transform/impute"
	"github.com/wdm0006/catalogetl/pkg/transform/standardize"
)

var ratings = []string{" TV-MA", "TV-14 ", "PG-13", "R", "tv-pg", "PG"}

// genSource produces synthetic catalog rows without touching disk.
type genSource struct {
	rows  int
	batch int
	missp float64
	seed  int64
}

func (g *genSource) Name() string { return "synthetic" }

func (g *genSource) Open(ctx context.Context, location string) (etl.Reader, error) {
	return &genReader{g: g, remain: g.rows, rnd: rand.New(rand.NewSource(g.seed))}, nil
}

func genSchema() etl.Schema {
	return etl.Schema{Columns: []etl.ColumnSchema{
		{Name: "show_id", Type: etl.KindString},
		{Name: "rating", Type: etl.KindString, Nullable: true},
		{Name: "release_year", Type: etl.KindInt, Nullable: true},
		{Name: "duration_min", Type: etl.KindFloat, Nullable: true},
		{Name: "kids", Type: etl.KindBool, Nullable: true},
	}}
}

type genReader struct {
	g      *genSource
	remain int
	next   int
	rnd    *rand.Rand
}

func (r *genReader) Schema() etl.Schema { return genSchema() }

func (r *genReader) Next(ctx context.Context) (*etl.Batch, error) {
	if r.remain <= 0 {
		return nil, io.EOF
	}
	n := min(r.g.batch, r.remain)
	r.remain -= n
	b := etl.NewBatch(genSchema())
	for i := 0; i < n; i++ {
		b.AppendNullRow()
		r.next++
		_ = b.SetCell(i, "show_id", fmt.Sprintf("s%d", r.next))
		if r.rnd.Float64() >= r.g.missp {
			_ = b.SetCell(i, "rating", ratings[r.rnd.Intn(len(ratings))])
		}
		if r.rnd.Float64() >= r.g.missp {
			_ = b.SetCell(i, "release_year", int64(1940+r.rnd.Intn(82)))
		}
		if r.rnd.Float64() >= r.g.missp {
			_ = b.SetCell(i, "duration_min", 20+r.rnd.Float64()*160)
		}
		if r.rnd.Float64() >= r.g.missp {
			_ = b.SetCell(i, "kids", r.rnd.Intn(4) == 0)
		}
	}
	return b, nil
}

func (r *genReader) Close() error { return nil }

type blackholeSink struct{ rows int }

func (s *blackholeSink) Name() string { return "blackhole" }

func (s *blackholeSink) Create(ctx context.Context, location string, schema etl.Schema) (etl.Writer, error) {
	return s, nil
}

func (s *blackholeSink) Write(ctx context.Context, b *etl.Batch) error {
	s.rows += b.Rows()
	return nil
}

func (s *blackholeSink) Close() error { return nil }

type options struct {
	rows    int
	batch   int
	missp   float64
	seed    int64
	jsonOut bool
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "catalogbench",
		Short:        "Measure pipeline throughput and memory on synthetic catalog rows",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bench(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.rows, "rows", 5_000_000, "total rows to generate")
	cmd.Flags().IntVar(&opts.batch, "batch-size", 100_000, "rows per batch")
	cmd.Flags().Float64Var(&opts.missp, "missing", 0.05, "probability of a missing cell")
	cmd.Flags().Int64Var(&opts.seed, "seed", 42, "random seed")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit JSON summary")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bench(w io.Writer, opts *options) error {
	fill, err := impute.NewFillMissing([]string{"rating"}, "literal", "unrated")
	if err != nil {
		return err
	}
	chain := etl.NewChain(
		&impute.Mean{Column: "duration_min"},
		&impute.Median{Column: "release_year"},
		&impute.Mode{Column: "kids"},
		fill,
		&standardize.Normalize{Columns: []string{"rating"}},
	)
	src := &genSource{rows: opts.rows, batch: opts.batch, missp: opts.missp, seed: opts.seed}
	sink := &blackholeSink{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := etl.NewOrchestrator(src, chain, sink, etl.Options{Logger: log})

	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	res, err := o.Run(context.Background(), "synthetic", "blackhole")
	if err != nil {
		return err
	}
	runtime.ReadMemStats(&after)

	elapsed := res.Duration
	rowsPerSec := float64(res.RowsWritten) / elapsed.Seconds()
	summary := map[string]any{
		"rows":                  res.RowsWritten,
		"batches":               res.Batches,
		"batch_size":            opts.batch,
		"elapsed_ms":            elapsed.Milliseconds(),
		"rows_per_sec":          rowsPerSec,
		"mem_alloc_bytes":       after.Alloc,
		"mem_total_alloc_bytes": after.TotalAlloc - before.TotalAlloc,
		"gc_num":                after.NumGC - before.NumGC,
		"missing_prob":          opts.missp,
	}
	if opts.jsonOut {
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"rows", res.RowsWritten},
		{"batches", res.Batches},
		{"elapsed", elapsed.Round(time.Millisecond)},
		{"throughput", fmt.Sprintf("%.0f rows/s", rowsPerSec)},
		{"current alloc", fmt.Sprintf("%d MB", after.Alloc/1024/1024)},
		{"total alloc (delta)", fmt.Sprintf("%d MB", (after.TotalAlloc-before.TotalAlloc)/1024/1024)},
		{"gc cycles (delta)", after.NumGC - before.NumGC},
	})
	t.Render()
	return nil
}
