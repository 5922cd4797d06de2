package etl

import (
	"fmt"
	"strconv"
)

// Schema describes the ordered column contract a batch satisfies.
type Schema struct {
	Columns []ColumnSchema
}

type ColumnSchema struct {
	Name     string
	Type     Kind
	Nullable bool
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s Schema) Column(name string) (ColumnSchema, bool) {
	i := s.Index(name)
	if i < 0 {
		return ColumnSchema{}, false
	}
	return s.Columns[i], true
}

// Equal reports whether both schemas have the same names and kinds in order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i].Name != o.Columns[i].Name || s.Columns[i].Type != o.Columns[i].Type {
			return false
		}
	}
	return true
}

// Column is a typed, nullable column.
type Column interface {
	Name() string
	Kind() Kind
	Len() int
	IsNull(i int) bool
	SetNull(i int)
	// Value returns the cell as bool, int64, float64 or string; nil when null.
	Value(i int) any
	appendNull()
	take(idx []int) Column
}

type BoolColumn struct {
	name  string
	data  []bool
	nulls []bool
}

func NewBoolColumn(name string, n int) *BoolColumn {
	return &BoolColumn{name: name, data: make([]bool, n), nulls: make([]bool, n)}
}
func (c *BoolColumn) Name() string           { return c.name }
func (c *BoolColumn) Kind() Kind             { return KindBool }
func (c *BoolColumn) Len() int               { return len(c.data) }
func (c *BoolColumn) IsNull(i int) bool      { return c.nulls[i] }
func (c *BoolColumn) SetNull(i int)          { c.nulls[i] = true }
func (c *BoolColumn) Get(i int) (bool, bool) { return c.data[i], !c.nulls[i] }
func (c *BoolColumn) Set(i int, v bool)      { c.data[i] = v; c.nulls[i] = false }
func (c *BoolColumn) Append(v bool)          { c.data = append(c.data, v); c.nulls = append(c.nulls, false) }
func (c *BoolColumn) appendNull()            { c.data = append(c.data, false); c.nulls = append(c.nulls, true) }
func (c *BoolColumn) Value(i int) any {
	if c.nulls[i] {
		return nil
	}
	return c.data[i]
}
func (c *BoolColumn) take(idx []int) Column {
	out := NewBoolColumn(c.name, len(idx))
	for k, i := range idx {
		out.data[k], out.nulls[k] = c.data[i], c.nulls[i]
	}
	return out
}

type IntColumn struct {
	name  string
	data  []int64
	nulls []bool
}

func NewIntColumn(name string, n int) *IntColumn {
	return &IntColumn{name: name, data: make([]int64, n), nulls: make([]bool, n)}
}
func (c *IntColumn) Name() string            { return c.name }
func (c *IntColumn) Kind() Kind              { return KindInt }
func (c *IntColumn) Len() int                { return len(c.data) }
func (c *IntColumn) IsNull(i int) bool       { return c.nulls[i] }
func (c *IntColumn) SetNull(i int)           { c.nulls[i] = true }
func (c *IntColumn) Get(i int) (int64, bool) { return c.data[i], !c.nulls[i] }
func (c *IntColumn) Set(i int, v int64)      { c.data[i] = v; c.nulls[i] = false }
func (c *IntColumn) Append(v int64)          { c.data = append(c.data, v); c.nulls = append(c.nulls, false) }
func (c *IntColumn) appendNull()             { c.data = append(c.data, 0); c.nulls = append(c.nulls, true) }
func (c *IntColumn) Value(i int) any {
	if c.nulls[i] {
		return nil
	}
	return c.data[i]
}
func (c *IntColumn) take(idx []int) Column {
	out := NewIntColumn(c.name, len(idx))
	for k, i := range idx {
		out.data[k], out.nulls[k] = c.data[i], c.nulls[i]
	}
	return out
}

type FloatColumn struct {
	name  string
	data  []float64
	nulls []bool
}

func NewFloatColumn(name string, n int) *FloatColumn {
	return &FloatColumn{name: name, data: make([]float64, n), nulls: make([]bool, n)}
}
func (c *FloatColumn) Name() string              { return c.name }
func (c *FloatColumn) Kind() Kind                { return KindFloat }
func (c *FloatColumn) Len() int                  { return len(c.data) }
func (c *FloatColumn) IsNull(i int) bool         { return c.nulls[i] }
func (c *FloatColumn) SetNull(i int)             { c.nulls[i] = true }
func (c *FloatColumn) Get(i int) (float64, bool) { return c.data[i], !c.nulls[i] }
func (c *FloatColumn) Set(i int, v float64)      { c.data[i] = v; c.nulls[i] = false }
func (c *FloatColumn) Append(v float64)          { c.data = append(c.data, v); c.nulls = append(c.nulls, false) }
func (c *FloatColumn) appendNull()               { c.data = append(c.data, 0); c.nulls = append(c.nulls, true) }
func (c *FloatColumn) Value(i int) any {
	if c.nulls[i] {
		return nil
	}
	return c.data[i]
}
func (c *FloatColumn) take(idx []int) Column {
	out := NewFloatColumn(c.name, len(idx))
	for k, i := range idx {
		out.data[k], out.nulls[k] = c.data[i], c.nulls[i]
	}
	return out
}

type StringColumn struct {
	name  string
	data  []string
	nulls []bool
}

func NewStringColumn(name string, n int) *StringColumn {
	return &StringColumn{name: name, data: make([]string, n), nulls: make([]bool, n)}
}
func (c *StringColumn) Name() string             { return c.name }
func (c *StringColumn) Kind() Kind               { return KindString }
func (c *StringColumn) Len() int                 { return len(c.data) }
func (c *StringColumn) IsNull(i int) bool        { return c.nulls[i] }
func (c *StringColumn) SetNull(i int)            { c.nulls[i] = true }
func (c *StringColumn) Get(i int) (string, bool) { return c.data[i], !c.nulls[i] }
func (c *StringColumn) Set(i int, v string)      { c.data[i] = v; c.nulls[i] = false }
func (c *StringColumn) Append(v string)          { c.data = append(c.data, v); c.nulls = append(c.nulls, false) }
func (c *StringColumn) appendNull()              { c.data = append(c.data, ""); c.nulls = append(c.nulls, true) }
func (c *StringColumn) Value(i int) any {
	if c.nulls[i] {
		return nil
	}
	return c.data[i]
}
func (c *StringColumn) take(idx []int) Column {
	out := NewStringColumn(c.name, len(idx))
	for k, i := range idx {
		out.data[k], out.nulls[k] = c.data[i], c.nulls[i]
	}
	return out
}

// Row is a single record keyed by column name; nulls are nil.
type Row map[string]any

// Batch is a bounded, columnar group of rows sharing one schema.
type Batch struct {
	schema Schema
	cols   []Column
	index  map[string]int // name -> col index
	nrows  int
}

func NewBatch(s Schema) *Batch {
	b := &Batch{schema: s, cols: make([]Column, len(s.Columns)), index: make(map[string]int, len(s.Columns))}
	for i, cs := range s.Columns {
		b.cols[i] = newColumn(cs)
		b.index[cs.Name] = i
	}
	return b
}

func newColumn(cs ColumnSchema) Column {
	switch cs.Type {
	case KindBool:
		return NewBoolColumn(cs.Name, 0)
	case KindInt:
		return NewIntColumn(cs.Name, 0)
	case KindFloat:
		return NewFloatColumn(cs.Name, 0)
	case KindString:
		return NewStringColumn(cs.Name, 0)
	default:
		panic(fmt.Sprintf("invalid column kind %d for %q", cs.Type, cs.Name))
	}
}

func (b *Batch) Schema() Schema        { return b.schema }
func (b *Batch) Rows() int             { return b.nrows }
func (b *Batch) Cols() int             { return len(b.cols) }
func (b *Batch) ColumnAt(i int) Column { return b.cols[i] }

func (b *Batch) ColumnByName(name string) (Column, bool) {
	i, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return b.cols[i], true
}

// AppendNullRow appends a row with all-null values.
func (b *Batch) AppendNullRow() {
	for _, c := range b.cols {
		c.appendNull()
	}
	b.nrows++
}

// AppendRow appends values in schema order; nil stands for null.
func (b *Batch) AppendRow(values ...any) error {
	if len(values) != len(b.cols) {
		return fmt.Errorf("append row: want %d values, got %d", len(b.cols), len(values))
	}
	b.AppendNullRow()
	row := b.nrows - 1
	for i, v := range values {
		if err := b.SetCell(row, b.cols[i].Name(), v); err != nil {
			return err
		}
	}
	return nil
}

// Value returns a cell by row and column name; nil when null or unknown.
func (b *Batch) Value(row int, name string) any {
	c, ok := b.ColumnByName(name)
	if !ok {
		return nil
	}
	return c.Value(row)
}

// Row returns row i as a map.
func (b *Batch) Row(i int) Row {
	r := make(Row, len(b.cols))
	for _, c := range b.cols {
		r[c.Name()] = c.Value(i)
	}
	return r
}

// Values returns row i in schema order.
func (b *Batch) Values(i int) []any {
	out := make([]any, len(b.cols))
	for k, c := range b.cols {
		out[k] = c.Value(i)
	}
	return out
}

// Take returns a new batch holding the given rows, in the given order.
func (b *Batch) Take(idx []int) *Batch {
	out := &Batch{schema: b.schema, cols: make([]Column, len(b.cols)), index: b.index, nrows: len(idx)}
	for i, c := range b.cols {
		out.cols[i] = c.take(idx)
	}
	return out
}

// Project returns a batch restricted to the named columns, in that order.
// Column data is shared with the receiver.
func (b *Batch) Project(names []string) (*Batch, error) {
	s := Schema{Columns: make([]ColumnSchema, len(names))}
	cols := make([]Column, len(names))
	index := make(map[string]int, len(names))
	for k, n := range names {
		i, ok := b.index[n]
		if !ok {
			return nil, &UnknownColumnError{Column: n}
		}
		s.Columns[k] = b.schema.Columns[i]
		cols[k] = b.cols[i]
		index[n] = k
	}
	return &Batch{schema: s, cols: cols, index: index, nrows: b.nrows}, nil
}

// SetCell sets a single cell value by name (row must exist).
func (b *Batch) SetCell(row int, name string, v any) error {
	i, ok := b.index[name]
	if !ok {
		return &UnknownColumnError{Column: name}
	}
	if v == nil {
		b.cols[i].SetNull(row)
		return nil
	}
	switch col := b.cols[i].(type) {
	case *BoolColumn:
		t, ok := v.(bool)
		if !ok {
			return fmt.Errorf("column %s expects bool, got %T", name, v)
		}
		col.Set(row, t)
	case *IntColumn:
		switch t := v.(type) {
		case int:
			col.Set(row, int64(t))
		case int32:
			col.Set(row, int64(t))
		case int64:
			col.Set(row, t)
		case float64:
			if t != float64(int64(t)) {
				return fmt.Errorf("column %s expects int, got %v", name, t)
			}
			col.Set(row, int64(t))
		default:
			return fmt.Errorf("column %s expects int, got %T", name, v)
		}
	case *FloatColumn:
		switch t := v.(type) {
		case float32:
			col.Set(row, float64(t))
		case float64:
			col.Set(row, t)
		case int:
			col.Set(row, float64(t))
		case int64:
			col.Set(row, float64(t))
		default:
			return fmt.Errorf("column %s expects float, got %T", name, v)
		}
	case *StringColumn:
		switch t := v.(type) {
		case string:
			col.Set(row, t)
		case int64:
			col.Set(row, strconv.FormatInt(t, 10))
		case int:
			col.Set(row, strconv.Itoa(t))
		case float64:
			col.Set(row, strconv.FormatFloat(t, 'g', -1, 64))
		case bool:
			col.Set(row, strconv.FormatBool(t))
		default:
			return fmt.Errorf("column %s expects string, got %T", name, v)
		}
	default:
		return fmt.Errorf("unknown column kind")
	}
	return nil
}
