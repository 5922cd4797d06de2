// Package logging builds the slog logger used by the commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ParseLevel maps debug|info|warn|error to a slog level. Empty is info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// New returns a text or json logger writing to w.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Open is New with an optional log file. When file is set, records go to
// both w and the file, which is appended to and whose parent directories
// are created. The caller closes the returned Closer.
func Open(level, format, file string, w io.Writer) (*slog.Logger, io.Closer, error) {
	if file == "" {
		log, err := New(level, format, w)
		return log, nopCloser{}, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	log, err := New(level, format, io.MultiWriter(w, f))
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return log, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LockedWriter serializes writes to w so loggers with separate handlers can
// share it.
type LockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// Locked wraps w, unless it is already a *LockedWriter.
func Locked(w io.Writer) *LockedWriter {
	if lw, ok := w.(*LockedWriter); ok {
		return lw
	}
	return &LockedWriter{w: w}
}

func (l *LockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
