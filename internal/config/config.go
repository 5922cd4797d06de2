// Package config loads pipeline definitions from JSON, YAML or TOML files
// and turns them into a Source, a Chain and a Sink.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

type Input struct {
	Path string `json:"path"`
	// Type is csv, jsonl, parquet, or a SQL driver name; guessed from the
	// path extension when empty.
	Type      string `json:"type"`
	HasHeader *bool  `json:"has_header"` // default true
	Delimiter string `json:"delimiter"`
	BatchSize int    `json:"batch_size"`
	Driver    string `json:"driver"`
	Query     string `json:"query"`
	Table     string `json:"table"`
}

type Output struct {
	Path       string `json:"path"`
	Type       string `json:"type"` // csv, jsonl, parquet, mongo or a SQL driver name
	Delimiter  string `json:"delimiter"`
	Append     bool   `json:"append"`
	Driver     string `json:"driver"`
	Table      string `json:"table"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// Column is one expected source column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	// File, when set, receives a copy of every record.
	File string `json:"file"`
}

type Config struct {
	Name   string   `json:"name"`
	Input  Input    `json:"input"`
	Output Output   `json:"output"`
	Expect []Column `json:"expect"`
	// Steps holds one single-key object per transformer, in run order.
	Steps []json.RawMessage `json:"steps"`
	Log   Log               `json:"log"`
}

// Load reads a config file; the format follows the extension (.json,
// .yaml, .yml, .toml).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext.
func Parse(ext string, data []byte) (*Config, error) {
	var generic map[string]any
	switch strings.ToLower(ext) {
	case ".json", "":
		return decodeJSON(data)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	// YAML and TOML go through JSON so steps keep one decoding path
	js, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	return decodeJSON(js)
}

func decodeJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := strictUnmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Check reports missing required fields.
func (c *Config) Check() error {
	if c.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if c.Input.BatchSize < 0 {
		return fmt.Errorf("input.batch_size must be positive")
	}
	return nil
}

func (i Input) hasHeader() bool { return i.HasHeader == nil || *i.HasHeader }

func delimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", s)
	}
	return r[0], nil
}
