// Package units provides binary size multipliers and human-readable size
// parsing and formatting for memory and spill budgets.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Binary size multipliers.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// ErrInvalidSize is returned when a size string cannot be parsed.
var ErrInvalidSize = errors.New("invalid size")

// ParseSize converts a human-readable size ("256MiB", "1GB", "4096") to bytes.
// An empty string parses to zero.
func ParseSize(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	parsed, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidSize, raw, err)
	}

	if parsed > math.MaxInt64 {
		return 0, fmt.Errorf("%w %q: exceeds int64", ErrInvalidSize, raw)
	}

	return int64(parsed), nil
}

// FormatBytes renders a byte count with IEC units ("1.5 MiB").
// Negative values are rendered with a leading minus sign.
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}

	return humanize.IBytes(uint64(n))
}

// FormatCount renders a row/position count with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}
