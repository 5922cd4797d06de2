package filter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGe       Op = "ge"
	OpLt       Op = "lt"
	OpLe       Op = "le"
	OpContains Op = "contains"
)

var opAliases = map[string]Op{
	"eq": OpEq, "==": OpEq, "=": OpEq,
	"ne": OpNe, "!=": OpNe,
	"gt": OpGt, ">": OpGt,
	"ge": OpGe, ">=": OpGe,
	"lt": OpLt, "<": OpLt,
	"le": OpLe, "<=": OpLe,
	"contains": OpContains,
}

func ParseOp(s string) (Op, error) {
	op, ok := opAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown comparison operator %q", s)
	}
	return op, nil
}

// Compare keeps rows whose Column compares true against Value. Null cells
// never match, whatever the operator.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

func NewCompare(column, op string, value any) (*Compare, error) {
	o, err := ParseOp(op)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("compare %s: missing value", column)
	}
	return &Compare{Column: column, Op: o, Value: value}, nil
}

func (t *Compare) Name() string { return "compare" }

func (t *Compare) OutputSchema(in etl.Schema) (etl.Schema, error) {
	c, ok := in.Column(t.Column)
	if !ok {
		return in, &etl.UnknownColumnError{Column: t.Column, Transformer: t.Name()}
	}
	_, err := t.operand(c.Type)
	return in, err
}

// operand converts Value into the column's kind.
func (t *Compare) operand(k etl.Kind) (any, error) {
	if _, ok := opAliases[string(t.Op)]; !ok {
		return nil, fmt.Errorf("unknown comparison operator %q", t.Op)
	}
	if opAliases[string(t.Op)] == OpContains {
		if k != etl.KindString {
			return nil, fmt.Errorf("%s: contains needs a string column, %q is %s", t.Name(), t.Column, k)
		}
		return etl.FormatCell(t.Value), nil
	}
	var s string
	switch v := t.Value.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		s = fmt.Sprint(v)
	}
	if k == etl.KindString {
		return s, nil
	}
	// int columns compare against float operands too
	if k == etl.KindInt {
		k = etl.KindFloat
	}
	v, err := etl.ParseCell(k, s)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%s: cannot compare %s column %q with %v", t.Name(), k, t.Column, t.Value)
	}
	return v, nil
}

func (t *Compare) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	col, _ := b.ColumnByName(t.Column)
	want, _ := t.operand(col.Kind())
	op := opAliases[string(t.Op)]
	keep := make([]int, 0, b.Rows())
	for i := 0; i < col.Len(); i++ {
		v := col.Value(i)
		if v == nil {
			continue
		}
		if match(op, v, want) {
			keep = append(keep, i)
		}
	}
	return take(b, keep), nil
}

func match(op Op, v, want any) bool {
	var cmp int
	switch x := v.(type) {
	case string:
		w := want.(string)
		if op == OpContains {
			return strings.Contains(x, w)
		}
		cmp = strings.Compare(x, w)
	case int64:
		cmp = compareFloat(float64(x), want.(float64))
	case float64:
		cmp = compareFloat(x, want.(float64))
	case bool:
		w := want.(bool)
		switch {
		case x == w:
			cmp = 0
		case !x:
			cmp = -1
		default:
			cmp = 1
		}
	}
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
