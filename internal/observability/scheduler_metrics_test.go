package observability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
)

func TestNewSchedulerMetrics_NoopMeter(t *testing.T) {
	t.Parallel()

	sm, err := observability.NewSchedulerMetrics(noopmetric.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, sm)
}

func TestSchedulerMetrics_ReportsGoroutines(t *testing.T) {
	t.Parallel()

	mp, reader := newManualMeter(t)

	_, err := observability.NewSchedulerMetrics(mp.Meter("test"))
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	points := int64Points(t, findMetric(rm, "pipetrack.runtime.goroutines"))
	require.Len(t, points, 1)
	assert.Positive(t, points[0].Value)

	heap := int64Points(t, findMetric(rm, "pipetrack.runtime.heap.objects.bytes"))
	require.Len(t, heap, 1)
	assert.Positive(t, heap[0].Value)
}
