package profile

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func (c *Collector) ReportText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "Profile Summary (%d rows, %d batches)\n", c.rows, c.batches)
	for _, cp := range c.cols {
		fmt.Fprintf(&b, "- %s (%v): ", cp.Name, cp.Kind)
		switch {
		case cp.Num != nil:
			lo, hi := bounds(cp.Num)
			fmt.Fprintf(&b, "count=%d nulls=%d min=%s max=%s mean=%.6g\n", cp.Num.Count, cp.Num.Nulls, lo, hi, cp.Num.Mean())
		case cp.Bool != nil:
			fmt.Fprintf(&b, "count=%d nulls=%d true=%d false=%d\n", cp.Bool.Count, cp.Bool.Nulls, cp.Bool.True, cp.Bool.False)
		default:
			fmt.Fprintf(&b, "count=%d nulls=%d\n", cp.Str.Count, cp.Str.Nulls)
			for _, vc := range cp.Str.Top(c.topK) {
				fmt.Fprintf(&b, "  • %q: %d\n", vc.Value, vc.Count)
			}
		}
	}
	return b.String()
}

func bounds(s *NumStats) (string, string) {
	if s.Count == 0 {
		return "-", "-"
	}
	return strconv.FormatFloat(s.Min, 'g', 6, 64), strconv.FormatFloat(s.Max, 'g', 6, 64)
}

type JSONProfile struct {
	Rows    int          `json:"rows"`
	Batches int          `json:"batches"`
	Columns []JSONColumn `json:"columns"`
}

type JSONColumn struct {
	Name string      `json:"name"`
	Kind string      `json:"kind"`
	Num  *JSONNum    `json:"num,omitempty"`
	Bool *BoolStats  `json:"bool,omitempty"`
	Str  *JSONString `json:"str,omitempty"`
}

type JSONNum struct {
	Count int      `json:"count"`
	Nulls int      `json:"nulls"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
}

type JSONString struct {
	Count int          `json:"count"`
	Nulls int          `json:"nulls"`
	Top   []ValueCount `json:"top,omitempty"`
}

// ReportJSON returns a value ready for json.Marshal. Min, max and mean are
// null for numeric columns without values.
func (c *Collector) ReportJSON() JSONProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := JSONProfile{Rows: c.rows, Batches: c.batches, Columns: make([]JSONColumn, 0, len(c.cols))}
	for _, cp := range c.cols {
		jc := JSONColumn{Name: cp.Name, Kind: cp.Kind.String()}
		switch {
		case cp.Num != nil:
			jn := &JSONNum{Count: cp.Num.Count, Nulls: cp.Num.Nulls}
			if cp.Num.Count > 0 && !math.IsInf(cp.Num.Min, 0) {
				lo, hi, mean := cp.Num.Min, cp.Num.Max, cp.Num.Mean()
				jn.Min, jn.Max, jn.Mean = &lo, &hi, &mean
			}
			jc.Num = jn
		case cp.Bool != nil:
			bs := *cp.Bool
			jc.Bool = &bs
		default:
			jc.Str = &JSONString{Count: cp.Str.Count, Nulls: cp.Str.Nulls, Top: cp.Str.Top(c.topK)}
		}
		out.Columns = append(out.Columns, jc)
	}
	return out
}

// RenderTable writes one row per column as a borderless table.
func (c *Collector) RenderTable(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"column", "kind", "count", "nulls", "min", "max", "mean", "top"})
	for _, cp := range c.cols {
		switch {
		case cp.Num != nil:
			lo, hi := bounds(cp.Num)
			mean := "-"
			if cp.Num.Count > 0 {
				mean = strconv.FormatFloat(cp.Num.Mean(), 'g', 6, 64)
			}
			t.AppendRow(table.Row{cp.Name, cp.Kind.String(), cp.Num.Count, cp.Num.Nulls, lo, hi, mean, ""})
		case cp.Bool != nil:
			top := fmt.Sprintf("true=%d false=%d", cp.Bool.True, cp.Bool.False)
			t.AppendRow(table.Row{cp.Name, cp.Kind.String(), cp.Bool.Count, cp.Bool.Nulls, "-", "-", "-", top})
		default:
			t.AppendRow(table.Row{cp.Name, cp.Kind.String(), cp.Str.Count, cp.Str.Nulls, "-", "-", "-", topCell(cp.Str.Top(c.topK))})
		}
	}
	t.AppendSeparator()
	t.AppendFooter(table.Row{"rows", "", c.rows})
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}

func topCell(top []ValueCount) string {
	parts := make([]string, len(top))
	for i, vc := range top {
		parts[i] = fmt.Sprintf("%s (%d)", truncate(vc.Value, 24), vc.Count)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
