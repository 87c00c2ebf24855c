// Package lossdata parses two-backend loss traces and derives their per-step differences.
package lossdata

import (
	"encoding/json"

	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
)

// DefaultEpsilon is added to ValueB when the relative difference is 0/0.
const DefaultEpsilon = 1e-8

// LossRecord is one row of the input trace: a step and the loss reported by
// each of the two backends. Step is an integer label stored as a float.
type LossRecord struct {
	Step   float64 `json:"step"    yaml:"step"`
	ValueA float64 `json:"value_a" yaml:"value_a"`
	ValueB float64 `json:"value_b" yaml:"value_b"`
}

// DiffRecord is the difference between the two backends at one step.
type DiffRecord struct {
	Step         float64 `json:"step"          yaml:"step"`
	AbsoluteDiff float64 `json:"absolute_diff" yaml:"absolute_diff"`
	RelativeDiff float64 `json:"relative_diff" yaml:"relative_diff"`
}

// MarshalJSON encodes non-finite values as strings. Any input value can be
// NaN or infinite, since the parser accepts those spellings.
func (r LossRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"step":    mathutil.JSONValue(r.Step),
		"value_a": mathutil.JSONValue(r.ValueA),
		"value_b": mathutil.JSONValue(r.ValueB),
	})
}

// MarshalJSON encodes non-finite values as strings. RelativeDiff is infinite
// whenever ValueB is zero and ValueA is not.
func (r DiffRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"step":          mathutil.JSONValue(r.Step),
		"absolute_diff": mathutil.JSONValue(r.AbsoluteDiff),
		"relative_diff": mathutil.JSONValue(r.RelativeDiff),
	})
}
