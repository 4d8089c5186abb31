package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "pipetrack.requests.total"
	metricRequestDuration  = "pipetrack.request.duration.seconds"
	metricErrorsTotal      = "pipetrack.errors.total"
	metricInflightRequests = "pipetrack.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	// StatusOK labels a successful request.
	StatusOK = "ok"
	// StatusError labels a failed request.
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 60s: status reads are sub-millisecond,
// full simulations run for seconds.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// REDMetrics records rate, errors and duration of diagnostics requests and
// MCP tool calls.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	set := newInstrumentSet(mt)

	rm := &REDMetrics{
		requestsTotal:    set.counter(metricRequestsTotal, "Total number of requests", "{request}"),
		requestDuration:  set.seconds(metricRequestDuration, "Request duration in seconds"),
		errorsTotal:      set.counter(metricErrorsTotal, "Total number of failed requests", "{error}"),
		inflightRequests: set.upDownCounter(metricInflightRequests, "Number of in-flight requests", "{request}"),
	}

	err := set.register(nil)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordRequest records a completed request.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight increments the in-flight counter and returns its decrement.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// Observe wraps fn with in-flight tracking and records its outcome.
func (rm *REDMetrics) Observe(ctx context.Context, op string, fn func(context.Context) error) error {
	done := rm.TrackInflight(ctx, op)
	defer done()

	start := time.Now()
	err := fn(ctx)

	status := StatusOK
	if err != nil {
		status = StatusError
	}

	rm.RecordRequest(ctx, op, status, time.Since(start))

	return err
}
