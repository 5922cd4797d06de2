package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/wdm0006/catalogetl/internal/config"
	"github.com/wdm0006/catalogetl/pkg/etl"
	"github.com/wdm0006/catalogetl/pkg/profile"
)

type profileOptions struct {
	Type      string
	Delimiter string
	NoHeader  bool
	BatchSize int
	TopK      int
	Format    string
	Query     string
	Table     string
	Driver    string
}

func newProfileCmd(g *globalOptions) *cobra.Command {
	opts := &profileOptions{}
	cmd := &cobra.Command{
		Use:   "profile <input>",
		Short: "Stream an input and print per-column statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := config.Input{
				Path: args[0], Type: opts.Type, Delimiter: opts.Delimiter, BatchSize: opts.BatchSize,
				Query: opts.Query, Table: opts.Table, Driver: opts.Driver,
			}
			if opts.NoHeader {
				no := false
				in.HasHeader = &no
			}
			c := profile.NewCollector(opts.TopK)
			if err := profileInput(cmd, g, in, c); err != nil {
				return err
			}
			p := &config.Pipeline{Profiles: []*profile.Collector{c}}
			return writeProfiles(cmd.OutOrStdout(), p, opts.Format)
		},
	}
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "input type (default from extension)")
	cmd.Flags().StringVarP(&opts.Delimiter, "delimiter", "d", "", "CSV delimiter (default sniffed)")
	cmd.Flags().BoolVar(&opts.NoHeader, "no-header", false, "CSV input has no header line")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "rows per batch")
	cmd.Flags().IntVarP(&opts.TopK, "top-k", "k", 5, "most frequent string values to report")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "table, text or json")
	cmd.Flags().StringVar(&opts.Query, "query", "", "SQL query for SQL inputs")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table for SQL inputs")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "SQL driver when --type=sql")
	return cmd
}

// profileInput streams the input through the collector without writing.
func profileInput(cmd *cobra.Command, g *globalOptions, in config.Input, c *profile.Collector) error {
	log, closer, err := g.logger(config.Log{}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closer.Close()
	src, err := in.Source()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rd, err := src.Open(ctx, in.Path)
	if err != nil {
		return err
	}
	defer func() { _ = rd.Close() }()
	for idx := 0; ; idx++ {
		b, err := rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if _, err := c.Apply(ctx, b); err != nil {
			return err
		}
		log.Debug("profiled batch", "batch", idx, "rows", b.Rows())
	}
	if c.Rows() == 0 {
		// still report the columns of an empty input
		_, err = c.Apply(ctx, etl.NewBatch(rd.Schema()))
	}
	return err
}
