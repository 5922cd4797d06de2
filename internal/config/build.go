package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
	"github.com/wdm0006/catalogetl/pkg/io/csvio"
	"github.com/wdm0006/catalogetl/pkg/io/jsonlio"
	"github.com/wdm0006/catalogetl/pkg/io/mongoio"
	"github.com/wdm0006/catalogetl/pkg/io/parquetio"
	"github.com/wdm0006/catalogetl/pkg/io/sqlio"
	"github.com/wdm0006/catalogetl/pkg/profile"
)

// Pipeline is a fully built, immutable run definition.
type Pipeline struct {
	Name     string
	Input    string
	Output   string
	Source   etl.Source
	Chain    *etl.Chain
	Sink     etl.Sink
	Expect   []etl.ColumnSchema
	Profiles []*profile.Collector
}

// Build constructs fresh components for one run. Profile steps carry
// state, so every run needs its own Build.
func (c *Config) Build() (*Pipeline, error) {
	src, err := c.Input.Source()
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	sink, err := c.Output.sink()
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	chain, err := BuildChain(c.Steps)
	if err != nil {
		return nil, err
	}
	expect, err := c.expectations()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Name: c.Name, Input: c.Input.Path, Output: c.Output.Path, Source: src, Chain: chain, Sink: sink, Expect: expect}
	for _, t := range chain.Steps() {
		if pc, ok := t.(*profile.Collector); ok {
			p.Profiles = append(p.Profiles, pc)
		}
	}
	return p, nil
}

// Orchestrator wires the pipeline to a logger.
func (p *Pipeline) Orchestrator(log *slog.Logger) *etl.Orchestrator {
	if p.Name != "" && log != nil {
		log = log.With("pipeline", p.Name)
	}
	return etl.NewOrchestrator(p.Source, p.Chain, p.Sink, etl.Options{Expect: p.Expect, Logger: log})
}

func (c *Config) expectations() ([]etl.ColumnSchema, error) {
	out := make([]etl.ColumnSchema, 0, len(c.Expect))
	for _, e := range c.Expect {
		cs := etl.ColumnSchema{Name: e.Name, Nullable: e.Nullable}
		if e.Type != "" {
			k, err := etl.ParseKind(e.Type)
			if err != nil {
				return nil, fmt.Errorf("expect %s: %w", e.Name, err)
			}
			cs.Type = k
		}
		out = append(out, cs)
	}
	return out, nil
}

var sqlDrivers = map[string]bool{
	"sql": true, "sqlite": true, "sqlite3": true, "postgres": true, "postgresql": true,
	"pg": true, "mysql": true, "mariadb": true, "sqlserver": true, "mssql": true,
}

// formatOf guesses a format from the path, ignoring a trailing .gz.
func formatOf(path string) string {
	p := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch {
	case strings.HasPrefix(p, "mongodb://"), strings.HasPrefix(p, "mongodb+srv://"):
		return "mongo"
	}
	switch filepath.Ext(p) {
	case ".csv", ".tsv", ".txt":
		return "csv"
	case ".jsonl", ".ndjson", ".json":
		return "jsonl"
	case ".parquet", ".pq":
		return "parquet"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	}
	return "csv"
}

func sqlDriver(typ, driver string) string {
	if typ == "sql" {
		return driver
	}
	return typ
}

// Source builds the reader side of the input.
func (i Input) Source() (etl.Source, error) {
	typ := strings.ToLower(i.Type)
	if typ == "" {
		typ = formatOf(i.Path)
	}
	switch {
	case typ == "csv":
		d, err := delimiter(i.Delimiter)
		if err != nil {
			return nil, err
		}
		return csvio.Source{Options: csvio.ReaderOptions{HasHeader: i.hasHeader(), Delimiter: d, BatchSize: i.BatchSize}}, nil
	case typ == "jsonl" || typ == "json":
		return jsonlio.Source{Options: jsonlio.ReaderOptions{BatchSize: i.BatchSize}}, nil
	case typ == "parquet":
		return parquetio.Source{Options: parquetio.ReaderOptions{BatchSize: i.BatchSize}}, nil
	case sqlDrivers[typ]:
		if i.Query == "" && i.Table == "" {
			return nil, fmt.Errorf("sql input needs a query or a table")
		}
		return sqlio.Source{Options: sqlio.ReaderOptions{Driver: sqlDriver(typ, i.Driver), Query: i.Query, Table: i.Table, BatchSize: i.BatchSize}}, nil
	}
	return nil, fmt.Errorf("unsupported input type %q", i.Type)
}

func (o Output) sink() (etl.Sink, error) {
	typ := strings.ToLower(o.Type)
	if typ == "" {
		typ = formatOf(o.Path)
	}
	switch {
	case typ == "csv":
		d, err := delimiter(o.Delimiter)
		if err != nil {
			return nil, err
		}
		return csvio.Sink{Options: csvio.WriterOptions{Delimiter: d, Append: o.Append}}, nil
	case typ == "jsonl" || typ == "json":
		return jsonlio.Sink{Options: jsonlio.WriterOptions{Append: o.Append}}, nil
	case typ == "parquet":
		if o.Append {
			return nil, fmt.Errorf("parquet output cannot append")
		}
		return parquetio.Sink{}, nil
	case typ == "mongo" || typ == "mongodb":
		return mongoio.Sink{Options: mongoio.WriterOptions{Database: o.Database, Collection: o.Collection}}, nil
	case sqlDrivers[typ]:
		if o.Table == "" {
			return nil, fmt.Errorf("sql output needs a table")
		}
		return sqlio.Sink{Options: sqlio.WriterOptions{Driver: sqlDriver(typ, o.Driver), Table: o.Table}}, nil
	}
	return nil, fmt.Errorf("unsupported output type %q", o.Type)
}
