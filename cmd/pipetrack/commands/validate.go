package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/pipetrack/pkg/render"
)

// ErrInvalidReport is returned when a report does not match the schema.
var ErrInvalidReport = errors.New("report does not match the schema")

type validateOptions struct {
	colorize bool
	nocolor  bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <report.json|->",
		Short: "Validate a JSON report against the report schema",
		Long: `Validate a JSON report written by "pipetrack simulate --format json".

Examples:
  pipetrack validate report.json
  pipetrack simulate --format json | pipetrack validate -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.colorize, "color", false, "force colored output")
	cmd.Flags().BoolVar(&opts.nocolor, "no-color", false, "disable colored output")

	return cmd
}

func runValidate(cmd *cobra.Command, inputPath string, opts *validateOptions) error {
	if opts.nocolor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	} else if opts.colorize {
		color.NoColor = false //nolint:reassign // intentional override of library global
	}

	data, label, err := readInput(cmd.InOrStdin(), inputPath)
	if err != nil {
		return err
	}

	result, err := render.ValidateReportJSON(data)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}

	out := cmd.OutOrStdout()

	if result.Valid {
		color.New(color.FgGreen).Fprintf(out, "Report is valid (%s)\n", label)

		return nil
	}

	color.New(color.FgRed).Fprintf(out, "Report validation failed (%s)\n", label)

	for _, msg := range result.Errors {
		color.New(color.FgYellow).Fprintf(out, "  - %s\n", msg)
	}

	return fmt.Errorf("%w: %s, %d error(s)", ErrInvalidReport, label, len(result.Errors))
}

func readInput(stdin io.Reader, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}

		return data, "stdin", nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, "", fmt.Errorf("read report: %w", err)
	}

	return data, path, nil
}
