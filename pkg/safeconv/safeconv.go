// Package safeconv provides checked integer conversions used when byte counts
// and weights cross signed/unsigned boundaries.
package safeconv

import "math"

// MaxUint32 is the maximum value for uint32 type.
const MaxUint32 = uint32(math.MaxUint32)

// MustIntToUint32 converts int to uint32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint32(v int) uint32 {
	if v < 0 || v > int(MaxUint32) {
		panic("safeconv: int to uint32 out of bounds")
	}

	return uint32(v)
}

// SaturateUint64 converts uint64 to int64, clamping at math.MaxInt64.
func SaturateUint64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}

// NonNegative returns v, or zero when v is negative.
func NonNegative[T ~int | ~int32 | ~int64](v T) T {
	if v < 0 {
		return 0
	}

	return v
}
