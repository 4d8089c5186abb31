package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
	"github.com/Sumatoshi-tech/pipetrack/pkg/simulate"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

// ErrTaskNotStarted is the readiness failure before the task runs.
var ErrTaskNotStarted = errors.New("task not started")

type serveOptions struct {
	addr         string
	exitOnFinish bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a task behind health, readiness and Prometheus endpoints",
		Long: `Run a task and expose its pipelines while it runs:
  /healthz  liveness
  /readyz   503 until the task starts, and after it fails
  /metrics  Prometheus metrics: per-pipeline driver counts, split weight,
            memory and I/O, request RED metrics and Go runtime metrics

The server keeps running after the task ends until interrupted, unless
--exit-on-finish is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "diagnostics listen address (default from config)")
	cmd.Flags().BoolVar(&opts.exitOnFinish, "exit-on-finish", false, "stop serving once the task ends")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	ctx := cmd.Context()

	cfg, err := root.load()
	if err != nil {
		return err
	}

	if opts.addr != "" {
		cfg.Observability.DiagnosticsAddr = opts.addr
	}

	providers, err := root.initObservability(ctx, cfg, observability.ModeServe, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer shutdown(providers)

	simOpts := simulate.FromConfig(cfg)
	simOpts.TracerProvider = providers.TracerProvider
	simOpts.Logger = providers.Logger

	sim := simulate.New(simOpts)

	diag, err := observability.NewDiagnosticsServer(ctx, observability.DiagnosticsOptions{
		Addr: cfg.Observability.DiagnosticsAddr,
		Register: func(mt metric.Meter) error {
			_, regErr := observability.NewPipelineMetrics(mt, sim)

			return regErr //nolint:wrapcheck // wrapped by the diagnostics server
		},
		Checks: []observability.ReadyCheck{taskReady(sim.Task())},
		Tracer: providers.Tracer,
		Logger: providers.Logger,
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	defer func() {
		closeErr := diag.Close(context.Background())
		if closeErr != nil {
			providers.Logger.Warn("diagnostics shutdown failed", "error", closeErr)
		}
	}()

	providers.Logger.InfoContext(ctx, "diagnostics listening", "addr", diag.Addr())

	report, runErr := sim.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("serve: %w", runErr)
	}

	providers.Logger.InfoContext(ctx, "task ended", "state", report.State, "failure", report.Failure)

	if !opts.exitOnFinish {
		<-ctx.Done()
	}

	return nil
}

// taskReady fails until t has started and after it has failed.
func taskReady(t *task.Context) observability.ReadyCheck {
	return func(context.Context) error {
		if t.State() == task.StatePlanned {
			return ErrTaskNotStarted
		}

		return t.FailureCause()
	}
}
