package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Span names emitted on hot paths.
const (
	SpanDriverRun   = "pipetrack.driver.run"
	SpanSpillWrite  = "pipetrack.spill.write"
	SpanStatsSample = "pipetrack.stats.sample"
)

// filteringTracerProvider wraps a real TracerProvider and replaces hot-path
// spans with no-op spans. Whole tracers or single span names can be dropped.
type filteringTracerProvider struct {
	embedded.TracerProvider

	delegate          trace.TracerProvider
	noop              trace.TracerProvider
	suppressedTracers map[string]bool
	suppressedSpans   map[string]bool
}

// NewFilteringTracerProvider wraps delegate so that per-driver, per-spill and
// per-sample spans are dropped while task and pipeline spans are kept.
func NewFilteringTracerProvider(delegate trace.TracerProvider) trace.TracerProvider {
	return &filteringTracerProvider{
		delegate: delegate,
		noop:     nooptrace.NewTracerProvider(),
		suppressedTracers: map[string]bool{
			DriverTracerName: true,
		},
		suppressedSpans: map[string]bool{
			SpanDriverRun:   true,
			SpanSpillWrite:  true,
			SpanStatsSample: true,
		},
	}
}

// Tracer returns a tracer for name, or a no-op tracer when name is suppressed.
func (f *filteringTracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if f.suppressedTracers[name] {
		return f.noop.Tracer(name, opts...)
	}

	return &filteringTracer{
		delegate: f.delegate.Tracer(name, opts...),
		noop:     f.noop.Tracer(name, opts...),
		suppress: f.suppressedSpans,
	}
}

// filteringTracer returns no-op spans for suppressed names.
type filteringTracer struct {
	embedded.Tracer

	delegate trace.Tracer
	noop     trace.Tracer
	suppress map[string]bool
}

// Start creates a span, or a no-op span for suppressed names.
func (f *filteringTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if f.suppress[name] {
		return f.noop.Start(ctx, name, opts...)
	}

	return f.delegate.Start(ctx, name, opts...)
}
