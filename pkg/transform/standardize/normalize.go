// Package standardize rewrites string cells in place.
package standardize

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// Normalize trims surrounding whitespace, lower-cases and NFC-normalizes
// every string cell of the listed columns, or of every string column when
// Columns is empty. Applying it twice gives the same result as once.
type Normalize struct {
	Columns []string
}

func (t *Normalize) Name() string { return "normalize" }

func (t *Normalize) OutputSchema(in etl.Schema) (etl.Schema, error) {
	for _, c := range t.Columns {
		if err := etl.RequireKind(in, t.Name(), c, etl.KindString); err != nil {
			return in, err
		}
	}
	return in, nil
}

// NormalizeString applies the Normalize rules to one value.
func NormalizeString(c cases.Caser, s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return strings.TrimSpace(norm.NFC.String(c.String(s)))
}

func (t *Normalize) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	// Caser keeps state and is not safe for concurrent use
	caser := cases.Lower(language.Und)
	for _, col := range targets(b, t.Columns) {
		for i := 0; i < col.Len(); i++ {
			if v, ok := col.Get(i); ok {
				col.Set(i, NormalizeString(caser, v))
			}
		}
	}
	return b, nil
}

// targets returns the named string columns, or all string columns.
func targets(b *etl.Batch, names []string) []*etl.StringColumn {
	var out []*etl.StringColumn
	if len(names) == 0 {
		for i := 0; i < b.Cols(); i++ {
			if c, ok := b.ColumnAt(i).(*etl.StringColumn); ok {
				out = append(out, c)
			}
		}
		return out
	}
	for _, n := range names {
		col, _ := b.ColumnByName(n)
		if c, ok := col.(*etl.StringColumn); ok {
			out = append(out, c)
		}
	}
	return out
}
