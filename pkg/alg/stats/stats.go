// Package stats provides order statistics over numeric samples.
package stats

import (
	"cmp"
	"math"
	"slices"
)

// Number is the set of sample types accepted by the helpers in this package.
type Number interface {
	~int | ~int32 | ~int64 | ~float64
}

// Well-known percentile thresholds.
const (
	PercentileMedian = 0.5
	PercentileP75    = 0.75
	PercentileP90    = 0.9
	PercentileP95    = 0.95
	PercentileP99    = 0.99
)

// Mean returns the arithmetic mean of values.
// Returns 0 for an empty slice.
func Mean[T Number](values []T) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64

	for _, v := range values {
		sum += float64(v)
	}

	return sum / float64(len(values))
}

// Sorted returns a sorted copy of values. The input is not modified.
func Sorted[T cmp.Ordered](values []T) []T {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return sorted
}

// PercentileSorted returns the p-th percentile of an already sorted slice
// using linear interpolation between the closest ranks. p is clamped to [0, 1].
// Returns 0 for an empty slice.
func PercentileSorted[T Number](sorted []T, p float64) float64 {
	count := len(sorted)
	if count == 0 {
		return 0
	}

	p = Clamp(p, 0, 1)
	idx := p * float64(count-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))

	if lower == upper || upper >= count {
		return float64(sorted[lower])
	}

	frac := idx - float64(lower)

	return float64(sorted[lower])*(1-frac) + float64(sorted[upper])*frac
}

// Percentile returns the p-th percentile of values. The input is not modified.
func Percentile[T Number](values []T, p float64) float64 {
	return PercentileSorted(Sorted(values), p)
}

// Clamp restricts val to the range [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}
