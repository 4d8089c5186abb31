package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// DiagnosticsOptions configures a DiagnosticsServer.
type DiagnosticsOptions struct {
	// Addr is the listen address; "127.0.0.1:0" picks a free port.
	Addr string

	// Register adds extra instruments (e.g. pipeline gauges) to the
	// Prometheus-backed meter. Nil skips it.
	Register func(metric.Meter) error

	// Checks gate /readyz.
	Checks []ReadyCheck

	// Tracer opens a span per request. Nil uses a no-op tracer.
	Tracer trace.Tracer

	// Logger reports serve errors. Nil uses slog default.
	Logger *slog.Logger
}

// DiagnosticsServer exposes /healthz, /readyz and Prometheus /metrics.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
	provider *sdkmetric.MeterProvider
}

// NewDiagnosticsServer starts serving in the background and returns once the
// listener is bound.
func NewDiagnosticsServer(ctx context.Context, opts DiagnosticsOptions) (*DiagnosticsServer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(TracerName)
	}

	provider, metricsHandler, err := PrometheusProvider()
	if err != nil {
		return nil, err
	}

	meter := provider.Meter(meterName)

	red, err := registerDiagnosticsMetrics(meter, opts.Register)
	if err != nil {
		return nil, errors.Join(err, provider.Shutdown(ctx))
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", HealthHandler())
	mux.Handle("/readyz", ReadyHandler(opts.Checks...))
	mux.Handle("/metrics", metricsHandler)

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("listen on %s: %w", opts.Addr, err), provider.Shutdown(ctx))
	}

	srv := &http.Server{Handler: HTTPMiddleware(tracer, red, mux)} //nolint:gosec // local diagnostics endpoint

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Warn("diagnostics server stopped", "error", serveErr)
		}
	}()

	return &DiagnosticsServer{server: srv, listener: listener, provider: provider}, nil
}

func registerDiagnosticsMetrics(meter metric.Meter, register func(metric.Meter) error) (*REDMetrics, error) {
	_, err := NewSchedulerMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("register scheduler metrics: %w", err)
	}

	red, err := NewREDMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("register request metrics: %w", err)
	}

	if register != nil {
		err = register(meter)
		if err != nil {
			return nil, fmt.Errorf("register extra metrics: %w", err)
		}
	}

	return red, nil
}

// Addr returns the address the server is listening on.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close stops the HTTP server and the meter provider.
func (d *DiagnosticsServer) Close(ctx context.Context) error {
	var errs []error

	err := d.server.Shutdown(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("shutdown diagnostics server: %w", err))
	}

	err = d.provider.Shutdown(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
	}

	return errors.Join(errs...)
}
