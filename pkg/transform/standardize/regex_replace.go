package standardize

import (
	"context"
	"regexp"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

type RegexReplace struct {
	Column  string
	Pattern string
	Replace string
	re      *regexp.Regexp
}

// NewRegexReplace compiles the pattern up front.
func NewRegexReplace(col, pattern, replace string) (*RegexReplace, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexReplace{Column: col, Pattern: pattern, Replace: replace, re: re}, nil
}

func (t *RegexReplace) Name() string { return "regex_replace" }

func (t *RegexReplace) OutputSchema(in etl.Schema) (etl.Schema, error) {
	return in, etl.RequireKind(in, t.Name(), t.Column, etl.KindString)
}

func (t *RegexReplace) Apply(ctx context.Context, b *etl.Batch) (*etl.Batch, error) {
	if t.re == nil {
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return nil, err
		}
		t.re = re
	}
	if _, err := t.OutputSchema(b.Schema()); err != nil {
		return nil, err
	}
	for _, c := range targets(b, []string{t.Column}) {
		for i := 0; i < c.Len(); i++ {
			if v, ok := c.Get(i); ok {
				c.Set(i, t.re.ReplaceAllString(v, t.Replace))
			}
		}
	}
	return b, nil
}
