package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
)

func newFilteredProvider() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return exporter, tp
}

func TestFilteringProvider_DriverTracerSuppressed(t *testing.T) {
	t.Parallel()

	exporter, base := newFilteredProvider()
	fp := observability.NewFilteringTracerProvider(base)

	_, span := fp.Tracer(observability.DriverTracerName).Start(context.Background(), "anything")
	span.End()

	assert.Empty(t, exporter.GetSpans())
}

func TestFilteringProvider_HotSpansSuppressed(t *testing.T) {
	t.Parallel()

	exporter, base := newFilteredProvider()
	tracer := observability.NewFilteringTracerProvider(base).Tracer(observability.TracerName)

	for _, name := range []string{
		"pipetrack.task.run",
		observability.SpanDriverRun,
		observability.SpanSpillWrite,
		observability.SpanStatsSample,
		"pipetrack.pipeline.run",
	} {
		_, span := tracer.Start(context.Background(), name)
		span.End()
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "pipetrack.task.run", spans[0].Name)
	assert.Equal(t, "pipetrack.pipeline.run", spans[1].Name)
}

func TestFilteringProvider_NoopSpanIsUsable(t *testing.T) {
	t.Parallel()

	fp := observability.NewFilteringTracerProvider(nooptrace.NewTracerProvider())

	ctx, span := fp.Tracer(observability.DriverTracerName).Start(context.Background(), observability.SpanDriverRun)
	span.SetName("renamed")
	span.End()

	assert.NotNil(t, ctx)
}
