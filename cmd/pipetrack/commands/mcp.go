package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
	"github.com/Sumatoshi-tech/pipetrack/pkg/mcp"
	"github.com/Sumatoshi-tech/pipetrack/pkg/simulate"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport while a
task runs in the background.

The MCP server exposes the task as tools that AI agents can discover and invoke:
  - pipeline_status: queued, running and blocked drivers per pipeline
  - pipeline_stats: driver counts, memory, timings, I/O and operator summaries
  - task_report: task state, failure cause and spilled bytes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd, root)
		},
	}

	return cmd
}

func runMCP(cmd *cobra.Command, root *rootOptions) error {
	ctx := cmd.Context()

	cfg, err := root.load()
	if err != nil {
		return err
	}

	// Logs must stay off stdout, which carries the protocol.
	cfg.Observability.LogJSON = true

	providers, err := root.initObservability(ctx, cfg, observability.ModeMCP, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer shutdown(providers)

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return err
	}

	simOpts := simulate.FromConfig(cfg)
	simOpts.TracerProvider = providers.TracerProvider
	simOpts.Logger = providers.Logger

	sim := simulate.New(simOpts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	simDone := make(chan error, 1)

	go func() {
		_, runErr := sim.Run(runCtx)
		simDone <- runErr
	}()

	srv := mcp.NewServer(mcp.ServerDeps{
		Source:  sim,
		Logger:  providers.Logger,
		Metrics: red,
		Tracer:  providers.Tracer,
	})

	serveErr := srv.Run(ctx)

	cancel()

	simErr := <-simDone
	if errors.Is(simErr, context.Canceled) {
		simErr = nil
	}

	return errors.Join(serveErr, simErr)
}
