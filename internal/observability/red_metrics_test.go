package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
)

var errToolFailed = errors.New("tool failed")

func TestREDMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	mp, reader := newManualMeter(t)

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "pipeline_status", observability.StatusOK, 3*time.Millisecond)
	red.RecordRequest(context.Background(), "pipeline_stats", observability.StatusError, time.Second)

	rm := collectMetrics(t, reader)

	var total int64
	for _, dp := range int64Points(t, findMetric(rm, "pipetrack.requests.total")) {
		total += dp.Value
	}

	assert.EqualValues(t, 2, total)

	errorsTotal := int64Points(t, findMetric(rm, "pipetrack.errors.total"))
	require.Len(t, errorsTotal, 1)
	assert.EqualValues(t, 1, errorsTotal[0].Value)

	duration := findMetric(rm, "pipetrack.request.duration.seconds")
	require.NotNil(t, duration)
	_, ok := duration.Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestREDMetrics_ObserveTracksOutcome(t *testing.T) {
	t.Parallel()

	mp, reader := newManualMeter(t)

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	var inflightDuringCall int64

	err = red.Observe(context.Background(), "pipeline_stats", func(context.Context) error {
		for _, dp := range int64Points(t, findMetric(collectMetrics(t, reader), "pipetrack.inflight.requests")) {
			inflightDuringCall += dp.Value
		}

		return errToolFailed
	})
	require.ErrorIs(t, err, errToolFailed)
	assert.EqualValues(t, 1, inflightDuringCall)

	rm := collectMetrics(t, reader)

	inflight := int64Points(t, findMetric(rm, "pipetrack.inflight.requests"))
	require.Len(t, inflight, 1)
	assert.Zero(t, inflight[0].Value)

	assert.Len(t, int64Points(t, findMetric(rm, "pipetrack.errors.total")), 1)
}
