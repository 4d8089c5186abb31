package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
	"github.com/Sumatoshi-tech/pipetrack/pkg/render"
	"github.com/Sumatoshi-tech/pipetrack/pkg/simulate"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

// ErrTaskNotFinished is returned when the simulated task ends failed or
// canceled and --fail-on-error is set.
var ErrTaskNotFinished = errors.New("task did not finish")

type simulateOptions struct {
	format      string
	plotPath    string
	failOnError bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a task on a synthetic workload and print its report",
		Long: `Run one task with the configured pipelines on a bounded worker pool.

Drivers are created for splits and task-wide work, block and unblock, spill
pages and optionally fail. The final report lists per-pipeline statistics
and operator summaries.

Examples:
  pipetrack simulate
  pipetrack simulate --format json > report.json
  pipetrack simulate --config tpch.yaml --plot status.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", string(render.FormatTable), "output format: table, json or yaml")
	cmd.Flags().StringVar(&opts.plotPath, "plot", "", "write an HTML chart of pipeline status over time to this file")
	cmd.Flags().BoolVar(&opts.failOnError, "fail-on-error", false, "exit non-zero when the task fails or is canceled")

	return cmd
}

func runSimulate(cmd *cobra.Command, root *rootOptions, opts *simulateOptions) error {
	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := root.load()
	if err != nil {
		return err
	}

	providers, err := root.initObservability(cmd.Context(), cfg, observability.ModeCLI, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer shutdown(providers)

	simOpts := simulate.FromConfig(cfg)
	simOpts.TracerProvider = providers.TracerProvider
	simOpts.Logger = providers.Logger

	report, runErr := simulate.New(simOpts).Run(cmd.Context())

	err = render.Write(cmd.OutOrStdout(), format, report)
	if err != nil {
		return errors.Join(runErr, err)
	}

	if opts.plotPath != "" {
		err = writePlot(opts.plotPath, report)
		if err != nil {
			return errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("simulate: %w", runErr)
	}

	if opts.failOnError && report.State != task.StateFinished.String() {
		return fmt.Errorf("%w: %s %s", ErrTaskNotFinished, report.State, report.Failure)
	}

	return nil
}

func writePlot(path string, report render.Report) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}

	err = render.Plot(f, report)

	closeErr := f.Close()
	if err != nil || closeErr != nil {
		return fmt.Errorf("write plot %s: %w", path, errors.Join(err, closeErr))
	}

	return nil
}
