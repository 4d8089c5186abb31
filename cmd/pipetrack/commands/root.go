// Package commands implements the pipetrack CLI commands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pipetrack/internal/config"
	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
	"github.com/Sumatoshi-tech/pipetrack/pkg/version"
)

const binaryName = "pipetrack"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCommand builds the pipetrack command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   binaryName,
		Short: "Pipetrack - pipeline execution tracking for distributed query tasks",
		Long: `Pipetrack runs a task of pipelines on a synthetic workload and tracks
driver lifecycle, split weights, I/O counters, memory and spill usage.

Commands:
  simulate  Run a task and print its report
  serve     Run a task behind health, readiness and Prometheus endpoints
  mcp       Run a task and expose its pipelines to AI agents over MCP
  validate  Check a JSON report against the report schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./.pipetrack.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug logging and full trace sampling")

	rootCmd.AddCommand(NewSimulateCommand(opts))
	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewMCPCommand(opts))
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String(binaryName))
		},
	}
}

// load reads the configuration named by --config.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// initObservability builds providers from the observability section of cfg.
func (o *rootOptions) initObservability(
	ctx context.Context, cfg *config.Config, mode observability.AppMode, logOut io.Writer,
) (observability.Providers, error) {
	level, err := config.ParseLogLevel(cfg.Observability.LogLevel)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("observability: %w", err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceName = cfg.Observability.ServiceName
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Observability.LogJSON

	if o.debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	providers, err := observability.InitWithWriter(ctx, obsCfg, logOut)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("observability: %w", err)
	}

	return providers, nil
}

// shutdown flushes providers, logging instead of failing the command.
func shutdown(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}
