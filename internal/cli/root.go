// Package cli implements the catalogetl command tree.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wdm0006/catalogetl/internal/config"
	"github.com/wdm0006/catalogetl/internal/logging"
)

var version = "0.1.0-dev"

type globalOptions struct {
	LogLevel  string
	LogFormat string
	LogFile   string
	EnvFiles  []string
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "catalogetl",
		Short: "catalogetl - streaming cleanup of tabular catalogs",
		Long: `catalogetl reads a catalog (CSV, JSON Lines, Parquet or SQL) in bounded
batches, runs each batch through a chain of cleaning steps and writes the
result to CSV, JSON Lines, Parquet, a SQL table or MongoDB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.EnvFiles...)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (env "+config.EnvLogLevel+")")
	rootCmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "text or json (env "+config.EnvLogFormat+")")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also append logs to this file (env "+config.EnvLogFile+")")
	rootCmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "env files to load (default .env)")

	rootCmd.AddCommand(newRunCmd(opts), newProfileCmd(opts), newScheduleCmd(opts), newVersionCmd())
	return rootCmd
}

// logger resolves flags over config values over defaults. The Closer
// releases the log file, if any.
func (o *globalOptions) logger(cfg config.Log, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, format, file := cfg.Level, cfg.Format, cfg.File
	if o.LogLevel != "" {
		level = o.LogLevel
	}
	if o.LogFormat != "" {
		format = o.LogFormat
	}
	if o.LogFile != "" {
		file = o.LogFile
	}
	return logging.Open(level, format, file, w)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("catalogetl", version)
		},
	}
}
