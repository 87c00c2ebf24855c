// Package lossstats reduces a window of loss differences into extremal and
// mean statistics in a single pass.
package lossstats

import (
	"encoding/json"
	"math"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
)

// Extremum is an extremal value and the step of the record that produced it.
type Extremum struct {
	Value float64 `json:"value" yaml:"value"`
	Step  int64   `json:"step"  yaml:"step"`
}

// MarshalJSON encodes non-finite values as strings.
func (e Extremum) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value any   `json:"value"`
		Step  int64 `json:"step"`
	}{
		Value: mathutil.JSONValue(e.Value),
		Step:  e.Step,
	})
}

// Statistics summarizes the differences in one window.
//
// For a non-empty window with no record >= 0, MinPositiveDiff is (+Inf, 0);
// with no record < 0, MaxNegativeDiff is (-Inf, 0). An empty window yields the
// zero Statistics.
type Statistics struct {
	MaxDiff         Extremum `json:"max_diff"          yaml:"max_diff"`
	MinDiff         Extremum `json:"min_diff"          yaml:"min_diff"`
	MeanDiff        float64  `json:"mean_diff"         yaml:"mean_diff"`
	MaxAbsDiff      Extremum `json:"max_abs_diff"      yaml:"max_abs_diff"`
	MinAbsDiff      Extremum `json:"min_abs_diff"      yaml:"min_abs_diff"`
	MeanAbsDiff     float64  `json:"mean_abs_diff"     yaml:"mean_abs_diff"`
	MinPositiveDiff Extremum `json:"min_positive_diff" yaml:"min_positive_diff"`
	MaxNegativeDiff Extremum `json:"max_negative_diff" yaml:"max_negative_diff"`
}

// HasMinPositive reports whether MinPositiveDiff holds data rather than the
// +Inf sentinel. No record can produce +Inf there, since it must compare below it.
func (s Statistics) HasMinPositive() bool {
	return !math.IsInf(s.MinPositiveDiff.Value, 1)
}

// HasMaxNegative reports whether MaxNegativeDiff holds data rather than the
// -Inf sentinel.
func (s Statistics) HasMaxNegative() bool {
	return !math.IsInf(s.MaxNegativeDiff.Value, -1)
}

// MarshalJSON keeps the means JSON-safe, since they are infinite when an input
// is, and adds availability flags for the sentinel fields.
func (s Statistics) MarshalJSON() ([]byte, error) {
	type plain Statistics

	return json.Marshal(struct {
		plain

		MeanDiff       any  `json:"mean_diff"`
		MeanAbsDiff    any  `json:"mean_abs_diff"`
		HasMinPositive bool `json:"has_min_positive"`
		HasMaxNegative bool `json:"has_max_negative"`
	}{
		plain:          plain(s),
		MeanDiff:       mathutil.JSONValue(s.MeanDiff),
		MeanAbsDiff:    mathutil.JSONValue(s.MeanAbsDiff),
		HasMinPositive: s.HasMinPositive(),
		HasMaxNegative: s.HasMaxNegative(),
	})
}

// MarshalYAML adds the same availability flags. YAML spells infinities natively.
func (s Statistics) MarshalYAML() (any, error) {
	type Fields Statistics

	return struct {
		Fields `yaml:",inline"`

		HasMinPositive bool `yaml:"has_min_positive"`
		HasMaxNegative bool `yaml:"has_max_negative"`
	}{
		Fields:         Fields(s),
		HasMinPositive: s.HasMinPositive(),
		HasMaxNegative: s.HasMaxNegative(),
	}, nil
}

// Aggregate computes Statistics over diffs in one linear pass.
// Extrema update only on strict comparison, so the earliest of tied records wins.
// NaN differences never become extrema unless every difference is NaN; they
// still reach the means.
func Aggregate(diffs []lossdata.DiffRecord) Statistics {
	if len(diffs) == 0 {
		return Statistics{}
	}

	first := diffs[seedIndex(diffs)]
	firstAbs := math.Abs(first.AbsoluteDiff)
	firstStep := mathutil.TruncInt64(first.Step)

	st := Statistics{
		MaxDiff:         Extremum{Value: first.AbsoluteDiff, Step: firstStep},
		MinDiff:         Extremum{Value: first.AbsoluteDiff, Step: firstStep},
		MaxAbsDiff:      Extremum{Value: firstAbs, Step: firstStep},
		MinAbsDiff:      Extremum{Value: firstAbs, Step: firstStep},
		MinPositiveDiff: Extremum{Value: math.Inf(1)},
		MaxNegativeDiff: Extremum{Value: math.Inf(-1)},
	}

	var sum, sumAbs float64

	for _, d := range diffs {
		diff := d.AbsoluteDiff
		abs := math.Abs(diff)
		step := mathutil.TruncInt64(d.Step)

		sum += diff
		sumAbs += abs

		if diff > st.MaxDiff.Value {
			st.MaxDiff = Extremum{Value: diff, Step: step}
		}

		if diff < st.MinDiff.Value {
			st.MinDiff = Extremum{Value: diff, Step: step}
		}

		if abs > st.MaxAbsDiff.Value {
			st.MaxAbsDiff = Extremum{Value: abs, Step: step}
		}

		if abs < st.MinAbsDiff.Value {
			st.MinAbsDiff = Extremum{Value: abs, Step: step}
		}

		if diff >= 0 && diff < st.MinPositiveDiff.Value {
			st.MinPositiveDiff = Extremum{Value: diff, Step: step}
		}

		if diff < 0 && diff > st.MaxNegativeDiff.Value {
			st.MaxNegativeDiff = Extremum{Value: diff, Step: step}
		}
	}

	n := float64(len(diffs))
	st.MeanDiff = sum / n
	st.MeanAbsDiff = sumAbs / n

	return st
}

// seedIndex returns the first record whose difference is not NaN, or 0 when
// all are. A NaN seed would fail every later comparison.
func seedIndex(diffs []lossdata.DiffRecord) int {
	for i, d := range diffs {
		if !math.IsNaN(d.AbsoluteDiff) {
			return i
		}
	}

	return 0
}
