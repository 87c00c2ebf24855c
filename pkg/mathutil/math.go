// Package mathutil provides clamping and non-finite-aware float helpers.
package mathutil

import (
	"cmp"
	"math"
	"strconv"
)

// Spellings used for non-finite values in JSON and text output.
const (
	PosInf = "+Inf"
	NegInf = "-Inf"
	NaN    = "NaN"
)

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}

// IsFinite reports whether v is neither infinite nor NaN.
func IsFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// JSONValue returns v unchanged when it is finite, otherwise its string spelling.
// encoding/json rejects non-finite floats, so every float that can carry an
// unguarded division result goes through here before marshalling.
func JSONValue(v float64) any {
	switch {
	case math.IsNaN(v):
		return NaN
	case math.IsInf(v, 1):
		return PosInf
	case math.IsInf(v, -1):
		return NegInf
	default:
		return v
	}
}

// FormatFloat renders v for humans: "∞" and "-∞" for infinities, "NaN" for NaN,
// and a compact decimal with the given precision otherwise.
func FormatFloat(v float64, prec int) string {
	switch {
	case math.IsNaN(v):
		return NaN
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	default:
		return strconv.FormatFloat(v, 'g', prec, 64)
	}
}

// TruncInt64 truncates v toward zero. Non-finite values and values outside the
// int64 range truncate to 0.
func TruncInt64(v float64) int64 {
	if !IsFinite(v) {
		return 0
	}

	t := math.Trunc(v)
	if t >= math.MaxInt64 || t < math.MinInt64 {
		return 0
	}

	return int64(t)
}

// SaturateInt truncates v toward zero and saturates it to the int range.
// NaN maps to 0.
func SaturateInt(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt:
		return math.MaxInt
	case v <= math.MinInt:
		return math.MinInt
	default:
		return int(math.Trunc(v))
	}
}
