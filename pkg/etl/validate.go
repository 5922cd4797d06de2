package etl

import (
	"errors"
	"fmt"
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Column string
	Step   string // transformer name, empty for schema expectations
	Err    error
}

func (e FieldError) Error() string {
	switch {
	case e.Step != "":
		return fmt.Sprintf("step %s: %v", e.Step, e.Err)
	case e.Column != "":
		return fmt.Sprintf("column %s: %v", e.Column, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e FieldError) Unwrap() error { return e.Err }

// ValidationResult is ok when Errors is empty.
type ValidationResult struct {
	Errors []FieldError
}

func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Err joins the field errors, or returns nil when the result is ok.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, fe := range r.Errors {
		errs[i] = fe
	}
	return errors.Join(errs...)
}

// Validate checks the source schema against the expected columns, then walks
// the chain through every SchemaMapper. It returns the derived output schema
// when the chain could be walked to the end.
func Validate(in Schema, expect []ColumnSchema, chain *Chain) (Schema, ValidationResult) {
	var res ValidationResult
	for _, want := range expect {
		got, ok := in.Column(want.Name)
		if !ok {
			res.Errors = append(res.Errors, FieldError{Column: want.Name, Err: &UnknownColumnError{Column: want.Name}})
			continue
		}
		if want.Type == KindInvalid || want.Type == got.Type {
			continue
		}
		// integral samples satisfy a float expectation
		if want.Type == KindFloat && got.Type == KindInt {
			continue
		}
		res.Errors = append(res.Errors, FieldError{
			Column: want.Name,
			Err:    fmt.Errorf("expected %s, source has %s", want.Type, got.Type),
		})
	}
	cur := in
	if chain == nil {
		return cur, res
	}
	for _, t := range chain.steps {
		m, ok := t.(SchemaMapper)
		if !ok {
			continue
		}
		out, err := m.OutputSchema(cur)
		if err != nil {
			fe := FieldError{Step: t.Name(), Err: err}
			var uc *UnknownColumnError
			if errors.As(err, &uc) {
				fe.Column = uc.Column
			}
			res.Errors = append(res.Errors, fe)
			return cur, res
		}
		cur = out
	}
	return cur, res
}

// RequireColumns returns an *UnknownColumnError naming transformer for the
// first name absent from s.
func RequireColumns(s Schema, transformer string, names ...string) error {
	for _, n := range names {
		if s.Index(n) < 0 {
			return &UnknownColumnError{Column: n, Transformer: transformer}
		}
	}
	return nil
}

// RequireKind checks that the named column exists and has one of kinds.
func RequireKind(s Schema, transformer, name string, kinds ...Kind) error {
	c, ok := s.Column(name)
	if !ok {
		return &UnknownColumnError{Column: name, Transformer: transformer}
	}
	for _, k := range kinds {
		if c.Type == k {
			return nil
		}
	}
	return fmt.Errorf("%s: column %q has kind %s", transformer, name, c.Type)
}
