package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wdm0006/catalogetl/internal/config"
	"github.com/wdm0006/catalogetl/internal/logging"
	"github.com/wdm0006/catalogetl/pkg/etl"
)

type runOptions struct {
	BatchSize int
	Parallel  int
	Summary   bool
	Profile   string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <config>...",
		Short: "Run one or more pipeline configs",
		Long: `Run executes each pipeline config once. Several configs run concurrently;
each run is independent and the command fails if any run fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			results, err := runConfigs(ctx, g, opts, args, cmd.ErrOrStderr(), cmd.OutOrStdout())
			if opts.Summary {
				if serr := renderSummary(cmd.OutOrStdout(), results); serr != nil && err == nil {
					err = serr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "override input.batch_size (env "+config.EnvBatchSize+")")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 4, "maximum concurrent runs")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "print a summary table of all runs")
	cmd.Flags().StringVar(&opts.Profile, "profile-format", "text", "how profile steps report: text, json or table")
	return cmd
}

type namedResult struct {
	Name   string
	Result *etl.RunResult
	Err    error
}

// runConfigs runs every config and returns one result per config in
// argument order. The error is the first failure.
func runConfigs(ctx context.Context, g *globalOptions, opts *runOptions, paths []string, logOut, reportOut io.Writer) ([]namedResult, error) {
	results := make([]namedResult, len(paths))
	logOut = logging.Locked(logOut)
	var mu sync.Mutex // guards reportOut
	eg := &errgroup.Group{}
	if opts.Parallel > 0 {
		eg.SetLimit(opts.Parallel)
	}
	for i, path := range paths {
		eg.Go(func() error {
			res, err := runOne(ctx, g, opts, path, logOut, func(p *config.Pipeline) error {
				mu.Lock()
				defer mu.Unlock()
				return writeProfiles(reportOut, p, opts.Profile)
			})
			results[i] = namedResult{Name: path, Result: res, Err: err}
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		})
	}
	return results, eg.Wait()
}

func runOne(ctx context.Context, g *globalOptions, opts *runOptions, path string, logOut io.Writer, report func(*config.Pipeline) error) (*etl.RunResult, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	if opts.BatchSize > 0 {
		cfg.Input.BatchSize = opts.BatchSize
	}
	log, closer, err := g.logger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return execute(ctx, cfg, log, report)
}

func execute(ctx context.Context, cfg *config.Config, log *slog.Logger, report func(*config.Pipeline) error) (*etl.RunResult, error) {
	p, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	res, err := p.Orchestrator(log).Run(ctx, p.Input, p.Output)
	if err != nil {
		return res, err
	}
	if report != nil && len(p.Profiles) > 0 {
		if err := report(p); err != nil {
			return res, err
		}
	}
	return res, nil
}
