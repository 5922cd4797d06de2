package etl

import (
	"fmt"
	"strings"
)

// SourceNotFoundError reports a reader location that does not exist.
type SourceNotFoundError struct {
	Location string
	Err      error
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source not found: %s", e.Location)
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

// SchemaInconsistencyError reports data that does not fit the schema
// established by the first batch. Row is the row offset inside the batch
// and is -1 when the problem is not row-specific.
type SchemaInconsistencyError struct {
	Batch  int
	Row    int
	Column string
	Reason string
}

func (e *SchemaInconsistencyError) Error() string {
	var b strings.Builder
	b.WriteString("schema inconsistency")
	if e.Batch >= 0 {
		fmt.Fprintf(&b, " in batch %d", e.Batch)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// UnknownColumnError reports a transformer referring to a column missing
// from the working schema.
type UnknownColumnError struct {
	Column      string
	Transformer string
}

func (e *UnknownColumnError) Error() string {
	if e.Transformer != "" {
		return fmt.Sprintf("%s: unknown column %q", e.Transformer, e.Column)
	}
	return fmt.Sprintf("unknown column %q", e.Column)
}

// DestinationWriteError reports a destination that cannot be created or written.
type DestinationWriteError struct {
	Location string
	Err      error
}

func (e *DestinationWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Location, e.Err)
}

func (e *DestinationWriteError) Unwrap() error { return e.Err }

// TransformationError wraps a failure raised by a transformer.
type TransformationError struct {
	Transformer string
	BatchIndex  int
	Err         error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transformer %s failed on batch %d: %v", e.Transformer, e.BatchIndex, e.Err)
}

func (e *TransformationError) Unwrap() error { return e.Err }

// Stage names one step of a run.
type Stage string

const (
	StageRead      Stage = "read"
	StageValidate  Stage = "validate"
	StageTransform Stage = "transform"
	StageWrite     Stage = "write"
	StageFinalize  Stage = "finalize"
)

// StageError is the single structured failure surfaced by a run.
// BatchIndex is -1 when the failure is not tied to a batch.
type StageError struct {
	Stage      Stage
	BatchIndex int
	Err        error
}

func (e *StageError) Error() string {
	if e.BatchIndex >= 0 {
		return fmt.Sprintf("%s stage failed at batch %d: %v", e.Stage, e.BatchIndex, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
