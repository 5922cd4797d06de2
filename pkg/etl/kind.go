package etl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind enumerates supported logical types.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// ParseKind maps a config name ("int", "float", "bool", "string") to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer", "int64":
		return KindInt, nil
	case "float", "double", "number", "float64":
		return KindFloat, nil
	case "string", "str", "text":
		return KindString, nil
	}
	return KindInvalid, fmt.Errorf("unknown kind %q", s)
}

// Numeric reports whether the kind holds numbers.
func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

var numre = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?$`)

// InferKind picks a kind for a column from sampled text cells. Empty cells
// are ignored; a column with no non-empty cells is a string column.
func InferKind(cells []string) Kind {
	num, integer, boolean, str := 0, 0, 0, 0
	for _, c := range cells {
		v := strings.TrimSpace(c)
		if v == "" {
			continue
		}
		if numre.MatchString(v) {
			num++
			if !strings.ContainsAny(v, ".eE") {
				integer++
			}
			continue
		}
		lv := strings.ToLower(v)
		if lv == "true" || lv == "false" {
			boolean++
			continue
		}
		str++
	}
	switch {
	case str > 0:
		return KindString
	case num > 0 && boolean > 0:
		return KindString
	case num > 0 && integer == num:
		return KindInt
	case num > 0:
		return KindFloat
	case boolean > 0:
		return KindBool
	default:
		return KindString
	}
}

// ParseCell converts a text cell into a value of the given kind. An empty
// (after trimming) cell is null and returns nil.
func ParseCell(k Kind, s string) (any, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil, nil
	}
	switch k {
	case KindInt:
		return strconv.ParseInt(v, 10, 64)
	case KindFloat:
		return strconv.ParseFloat(v, 64)
	case KindBool:
		return strconv.ParseBool(strings.ToLower(v))
	default:
		return s, nil
	}
}

// FormatCell renders a cell value as text; nil renders as "".
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
