package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	EnvBatchSize = "CATALOGETL_BATCH_SIZE"
	EnvLogLevel  = "CATALOGETL_LOG_LEVEL"
	EnvLogFormat = "CATALOGETL_LOG_FORMAT"
	EnvLogFile   = "CATALOGETL_LOG_FILE"
)

// LoadDotEnv loads the given env files, or ./.env, into the process
// environment. Missing files are skipped; set variables are not replaced.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides the batch size and log settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s=%q: want a positive integer", EnvBatchSize, v)
		}
		c.Input.BatchSize = n
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := getenv(EnvLogFile); v != "" {
		c.Log.File = v
	}
	return nil
}
