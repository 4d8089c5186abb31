package safeconv_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/pipetrack/pkg/safeconv"
)

func TestMustIntToUint32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(42), safeconv.MustIntToUint32(42))
	assert.Panics(t, func() { safeconv.MustIntToUint32(-1) })
}

func TestSaturateUint64(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(7), safeconv.SaturateUint64(7))
	assert.Equal(t, int64(math.MaxInt64), safeconv.SaturateUint64(math.MaxUint64))
}

func TestNonNegative(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, safeconv.NonNegative(-3))
	assert.Equal(t, int64(5), safeconv.NonNegative(int64(5)))
}
