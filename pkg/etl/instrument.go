package etl

import (
	"log/slog"
	"time"
)

// Instrument receives explicit start/finish calls around every stage
// invocation of a run.
type Instrument interface {
	StageStarted(stage Stage, batch int, name string)
	StageFinished(stage Stage, batch int, name string, d time.Duration, err error)
}

// SlogInstrument logs stage timings through a slog.Logger at debug level
// and failures at error level.
type SlogInstrument struct {
	Logger *slog.Logger
}

func (s SlogInstrument) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s SlogInstrument) StageStarted(stage Stage, batch int, name string) {
	s.logger().Debug("stage start", "stage", string(stage), "batch", batch, "name", name)
}

func (s SlogInstrument) StageFinished(stage Stage, batch int, name string, d time.Duration, err error) {
	if err != nil {
		s.logger().Error("stage failed", "stage", string(stage), "batch", batch, "name", name, "duration", d, "error", err)
		return
	}
	s.logger().Debug("stage done", "stage", string(stage), "batch", batch, "name", name, "duration", d)
}

type nopInstrument struct{}

func (nopInstrument) StageStarted(Stage, int, string)                        {}
func (nopInstrument) StageFinished(Stage, int, string, time.Duration, error) {}

func timed[T any](fn func() (T, error)) (T, time.Duration, error) {
	start := time.Now()
	v, err := fn()
	return v, time.Since(start), err
}
