package impute

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type Constant struct {
	Column string
	// Value is coerced to the column kind.
	Value any
}

func (t *Constant) Name() string { return "impute_constant" }

func (t *Constant) OutputSchema(in etl.Schema) (etl.Schema, error) {
	c, ok := in.Column(t.Column)
	if !ok {
		return in, &etl.UnknownColumnError{Column: t.Column, Transformer: t.Name()}
	}
	if _, err := coerce(c.Type, t.Value); err != nil {
		return in, fmt.Errorf("%s: column %q: %w", t.Name(), t.Column, err)
	}
	return in, nil
}

func (t *Constant) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	col, _ := b.ColumnByName(t.Column)
	v, _ := coerce(col.Kind(), t.Value)
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			if err := b.SetCell(i, t.Column, v); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// coerce converts a configured literal into a value of kind k.
func coerce(k etl.Kind, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("fill value is null")
	}
	switch k {
	case etl.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return etl.FormatCell(normalizeNumber(v)), nil
	case etl.KindInt:
		switch t := normalizeNumber(v).(type) {
		case int64:
			return t, nil
		case float64:
			if t == math.Trunc(t) {
				return int64(t), nil
			}
		case string:
			if x, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return x, nil
			}
		}
	case etl.KindFloat:
		switch t := normalizeNumber(v).(type) {
		case int64:
			return float64(t), nil
		case float64:
			return t, nil
		case string:
			if x, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return x, nil
			}
		}
	case etl.KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			if x, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(t))); err == nil {
				return x, nil
			}
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as %s", v, v, k)
}

// normalizeNumber folds the integer and float types config decoders produce
// into int64 and float64.
func normalizeNumber(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	}
	return v
}
