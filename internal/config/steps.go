package config

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wdm0006/catalogetl/pkg/etl"
	"github.com/wdm0006/catalogetl/pkg/profile"
	"github.com/wdm0006/catalogetl/pkg/transform/filter"
	"github.com/wdm0006/catalogetl/pkg/transform/impute"
	"github.com/wdm0006/catalogetl/pkg/transform/outliers"
	"github.com/wdm0006/catalogetl/pkg/transform/project"
	"github.com/wdm0006/catalogetl/pkg/transform/standardize"
	"github.com/wdm0006/catalogetl/pkg/transform/validate"
)

// StepFactory builds a transformer from the body of a step entry.
type StepFactory func(body json.RawMessage) (etl.Transformer, error)

type column struct {
	Column string `json:"column"`
}

type columns struct {
	Columns []string `json:"columns"`
}

type bounds struct {
	Column string   `json:"column"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

var steps = map[string]StepFactory{
	"impute_constant": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Column string `json:"column"`
			Value  any    `json:"value"`
		}
		if err := strictUnmarshal(body, &s); err != nil {
			return nil, err
		}
		return &impute.Constant{Column: s.Column, Value: s.Value}, nil
	},
	"impute_mean": func(body json.RawMessage) (etl.Transformer, error) {
		var s column
		err := strictUnmarshal(body, &s)
		return &impute.Mean{Column: s.Column}, err
	},
	"impute_median": func(body json.RawMessage) (etl.Transformer, error) {
		var s column
		err := strictUnmarshal(body, &s)
		return &impute.Median{Column: s.Column}, err
	},
	"impute_mode": func(body json.RawMessage) (etl.Transformer, error) {
		var s column
		err := strictUnmarshal(body, &s)
		return &impute.Mode{Column: s.Column}, err
	},
	"fill_missing": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Columns  []string `json:"columns"`
			Strategy string   `json:"strategy"`
			Value    any      `json:"value"`
		}
		if err := strictUnmarshal(body, &s); err != nil {
			return nil, err
		}
		return impute.NewFillMissing(s.Columns, s.Strategy, s.Value)
	},
	"trim": func(body json.RawMessage) (etl.Transformer, error) {
		var s column
		err := strictUnmarshal(body, &s)
		return &standardize.Trim{Column: s.Column}, err
	},
	"lower": func(body json.RawMessage) (etl.Transformer, error) {
		var s column
		err := strictUnmarshal(body, &s)
		return &standardize.Lower{Column: s.Column}, err
	},
	"normalize": func(body json.RawMessage) (etl.Transformer, error) {
		var s columns
		err := strictUnmarshal(body, &s)
		return &standardize.Normalize{Columns: s.Columns}, err
	},
	"regex_replace": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Column  string `json:"column"`
			Pattern string `json:"pattern"`
			Replace string `json:"replace"`
		}
		if err := strictUnmarshal(body, &s); err != nil {
			return nil, err
		}
		return standardize.NewRegexReplace(s.Column, s.Pattern, s.Replace)
	},
	"map_values": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Column string            `json:"column"`
			Map    map[string]string `json:"map"`
		}
		err := strictUnmarshal(body, &s)
		return &standardize.MapValues{Column: s.Column, Map: s.Map}, err
	},
	"validate_in": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Column string   `json:"column"`
			Values []string `json:"values"`
		}
		err := strictUnmarshal(body, &s)
		return validate.NewInSet(s.Column, s.Values), err
	},
	"validate_range": func(body json.RawMessage) (etl.Transformer, error) {
		var s bounds
		err := strictUnmarshal(body, &s)
		return &validate.Range{Column: s.Column, Min: s.Min, Max: s.Max}, err
	},
	"cap_range": func(body json.RawMessage) (etl.Transformer, error) {
		var s bounds
		err := strictUnmarshal(body, &s)
		return &outliers.Cap{Column: s.Column, Min: s.Min, Max: s.Max}, err
	},
	"filter": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Column string `json:"column"`
			Op     string `json:"op"`
			Value  any    `json:"value"`
		}
		if err := strictUnmarshal(body, &s); err != nil {
			return nil, err
		}
		return filter.NewCompare(s.Column, s.Op, s.Value)
	},
	"drop_missing": func(body json.RawMessage) (etl.Transformer, error) {
		var s columns
		err := strictUnmarshal(body, &s)
		return &filter.DropMissing{Columns: s.Columns}, err
	},
	"missing_threshold": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Threshold float64 `json:"threshold"`
		}
		if err := strictUnmarshal(body, &s); err != nil {
			return nil, err
		}
		return filter.NewMissingThreshold(s.Threshold)
	},
	"select": func(body json.RawMessage) (etl.Transformer, error) {
		var s columns
		err := strictUnmarshal(body, &s)
		return &project.Select{Columns: s.Columns}, err
	},
	"rename": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			Map map[string]string `json:"map"`
		}
		err := strictUnmarshal(body, &s)
		return &project.Rename{Map: s.Map}, err
	},
	"profile": func(body json.RawMessage) (etl.Transformer, error) {
		var s struct {
			TopK *int `json:"top_k"`
		}
		if err := strictUnmarshal(body, &s); err != nil {
			return nil, err
		}
		k := 5
		if s.TopK != nil {
			k = *s.TopK
		}
		return profile.NewCollector(k), nil
	},
}

// StepNames lists the registered step keys.
func StepNames() []string {
	out := make([]string, 0, len(steps))
	for k := range steps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildStep decodes one {"<name>": {...}} entry.
func BuildStep(raw json.RawMessage) (etl.Transformer, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if len(probe) != 1 {
		return nil, fmt.Errorf("step must have exactly one key, got %d", len(probe))
	}
	for name, body := range probe {
		f, ok := steps[name]
		if !ok {
			return nil, fmt.Errorf("unknown step %q", name)
		}
		if len(body) == 0 || string(body) == "null" {
			body = json.RawMessage("{}")
		}
		t, err := f(body)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", name, err)
		}
		return t, nil
	}
	return nil, nil
}

// BuildChain builds every step in order.
func BuildChain(raws []json.RawMessage) (*etl.Chain, error) {
	chain := etl.NewChain()
	for i, raw := range raws {
		t, err := BuildStep(raw)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		chain.Add(t)
	}
	return chain, nil
}
