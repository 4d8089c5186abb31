// Package render formats pipeline reports as tables, JSON, YAML and HTML
// charts, and validates JSON reports against the report schema.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output format.
type Format string

// Supported formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat resolves a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Sample is the status of one pipeline at one point of a run.
type Sample struct {
	Elapsed    time.Duration   `json:"elapsed_nanos" yaml:"elapsed_nanos"`
	PipelineID int             `json:"pipeline_id"   yaml:"pipeline_id"`
	Status     pipeline.Status `json:"status"        yaml:"status"`
}

// Report is the outcome of one task run.
type Report struct {
	TaskID      string           `json:"task_id"                 yaml:"task_id"`
	State       string           `json:"state"                   yaml:"state"`
	Failure     string           `json:"failure,omitempty"       yaml:"failure,omitempty"`
	Duration    time.Duration    `json:"duration_nanos"          yaml:"duration_nanos"`
	SpilledData int64            `json:"spilled_bytes"           yaml:"spilled_bytes"`
	Pipelines   []pipeline.Stats `json:"pipelines"               yaml:"pipelines"`
	Samples     []Sample         `json:"samples,omitempty"       yaml:"samples,omitempty"`
}

// Write renders report to w in the given format.
func Write(w io.Writer, format Format, report Report) error {
	switch format {
	case FormatTable:
		_, err := io.WriteString(w, Table(report))
		if err != nil {
			return fmt.Errorf("write table: %w", err)
		}

		return nil
	case FormatJSON:
		return JSON(w, report)
	case FormatYAML:
		return YAML(w, report)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSON writes report as indented JSON.
func JSON(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(report)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// YAML writes report as YAML.
func YAML(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(report)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	closeErr := enc.Close()
	if closeErr != nil {
		return fmt.Errorf("flush yaml: %w", closeErr)
	}

	return nil
}
