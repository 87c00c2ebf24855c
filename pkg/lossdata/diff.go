package lossdata

import "math"

// ComputeDiffs derives one DiffRecord per LossRecord, in the same order.
//
// AbsoluteDiff is ValueA - ValueB. RelativeDiff is AbsoluteDiff / ValueB,
// except that a 0/0 result is recomputed against ValueB + epsilon. A non-zero
// difference over a zero ValueB is left as a signed infinity.
func ComputeDiffs(records []LossRecord, epsilon float64) []DiffRecord {
	diffs := make([]DiffRecord, len(records))

	for i, rec := range records {
		diffs[i] = Diff(rec, epsilon)
	}

	return diffs
}

// Diff computes the difference record for a single row.
func Diff(rec LossRecord, epsilon float64) DiffRecord {
	abs := rec.ValueA - rec.ValueB

	rel := abs / rec.ValueB
	if math.IsNaN(rel) {
		rel = abs / (rec.ValueB + epsilon)
	}

	return DiffRecord{
		Step:         rec.Step,
		AbsoluteDiff: abs,
		RelativeDiff: rel,
	}
}
