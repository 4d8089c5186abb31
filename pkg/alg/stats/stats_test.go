package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/pipetrack/pkg/alg/stats"
)

func TestMean(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, stats.Mean([]int64{}), 0.0001)
	assert.InDelta(t, 2.5, stats.Mean([]int64{1, 2, 3, 4}), 0.0001)
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	values := []int64{40, 10, 30, 20, 50}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "min", p: 0, want: 10},
		{name: "median", p: stats.PercentileMedian, want: 30},
		{name: "p75", p: stats.PercentileP75, want: 40},
		{name: "interpolated", p: 0.1, want: 14},
		{name: "max", p: 1, want: 50},
		{name: "clamped_above", p: 1.5, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.want, stats.Percentile(values, tt.p), 0.0001)
		})
	}

	assert.Equal(t, []int64{40, 10, 30, 20, 50}, values, "input must not be reordered")
}

func TestPercentile_Empty(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, stats.Percentile([]float64{}, stats.PercentileP99), 0.0001)
}

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10, stats.Clamp(15, 0, 10))
	assert.Equal(t, 0, stats.Clamp(-1, 0, 10))
	assert.InDelta(t, 5.0, stats.Clamp(5.0, 0.0, 10.0), 0.0001)
}
