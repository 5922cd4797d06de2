package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/wdm0006/catalogetl/internal/config"
	"github.com/wdm0006/catalogetl/internal/logging"
)

type scheduleOptions struct {
	Spec      string
	BatchSize int
}

func newScheduleCmd(g *globalOptions) *cobra.Command {
	opts := &scheduleOptions{}
	cmd := &cobra.Command{
		Use:   "schedule --cron <spec> <config>...",
		Short: "Run pipeline configs on a cron schedule until interrupted",
		Long: `Schedule runs every config each time the cron spec fires. A run that is
still going when the spec fires again is skipped, not overlapped. Failed
runs are logged and retried at the next tick.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logOut := logging.Locked(cmd.ErrOrStderr())
			log, closer, err := g.logger(config.Log{}, logOut)
			if err != nil {
				return err
			}
			defer closer.Close()
			var outMu sync.Mutex
			s, err := newScheduler(opts.Spec, args, func(ctx context.Context, path string) error {
				_, err := runOne(ctx, g, &runOptions{BatchSize: opts.BatchSize}, path, logOut, func(p *config.Pipeline) error {
					outMu.Lock()
					defer outMu.Unlock()
					return writeProfiles(cmd.OutOrStdout(), p, "text")
				})
				return err
			}, log)
			if err != nil {
				return err
			}
			s.Start(ctx)
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Spec, "cron", "", "cron spec, five fields or a descriptor such as @hourly")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 0, "override input.batch_size")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

type runFunc func(ctx context.Context, path string) error

// scheduler fires every config on a cron spec. Each config has its own
// guard so slow runs never overlap with themselves.
type scheduler struct {
	c     *cron.Cron
	spec  string
	paths []string
	run   runFunc
	log   *slog.Logger
	busy  sync.Map // path -> struct{}
}

func newScheduler(spec string, paths []string, run runFunc, log *slog.Logger) (*scheduler, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &scheduler{c: cron.New(), spec: spec, paths: paths, run: run, log: log}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *scheduler) Start(ctx context.Context) {
	for _, path := range s.paths {
		// spec already validated
		_, _ = s.c.AddFunc(s.spec, func() { s.fire(ctx, path) })
	}
	s.c.Start()
	s.log.Info("scheduler started", "spec", s.spec, "pipelines", len(s.paths))
}

func (s *scheduler) fire(ctx context.Context, path string) {
	if _, running := s.busy.LoadOrStore(path, struct{}{}); running {
		s.log.Warn("previous run still going, skipping", "config", path)
		return
	}
	defer s.busy.Delete(path)
	s.log.Info("scheduled run", "config", path)
	if err := s.run(ctx, path); err != nil {
		s.log.Error("scheduled run failed", "config", path, "error", err)
	}
}

// Stop stops firing and waits for running pipelines.
func (s *scheduler) Stop() {
	<-s.c.Stop().Done()
	s.log.Info("scheduler stopped")
}
