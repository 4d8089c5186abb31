package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
	"github.com/Sumatoshi-tech/pipetrack/pkg/render"
)

// Tool name constants.
const (
	ToolNameStatus = "pipeline_status"
	ToolNameStats  = "pipeline_stats"
	ToolNameReport = "task_report"
)

// Sentinel errors for tool input validation.
var (
	// ErrNoSource indicates the server has no task to report on.
	ErrNoSource = errors.New("no task is attached to the server")
	// ErrUnknownPipeline indicates a requested pipeline ID does not exist.
	ErrUnknownPipeline = errors.New("unknown pipeline")
)

// Source supplies the pipelines and report of the observed task.
type Source interface {
	Pipelines() []*pipeline.Context
	Report() render.Report
}

// Input types (auto-generate JSON schemas via struct tags).

// StatusInput is the input schema for the pipeline_status tool.
type StatusInput struct {
	PipelineIDs []int `json:"pipeline_ids,omitempty" jsonschema:"optional pipeline IDs to report (default: all)"`
}

// StatsInput is the input schema for the pipeline_stats tool.
type StatsInput struct {
	PipelineIDs    []int `json:"pipeline_ids,omitempty"    jsonschema:"optional pipeline IDs to report (default: all)"`
	IncludeDrivers bool  `json:"include_drivers,omitempty" jsonschema:"include per-driver statistics of active drivers"`
}

// ReportInput is the input schema for the task_report tool.
type ReportInput struct {
	IncludeSamples bool `json:"include_samples,omitempty" jsonschema:"include the status samples recorded while the task ran"`
}

// PipelineStatus is one entry of the pipeline_status result.
type PipelineStatus struct {
	PipelineID       int   `json:"pipeline_id"`
	TotalSplits      int64 `json:"total_splits"`
	CompletedDrivers int64 `json:"completed_drivers"`

	pipeline.Status
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleStatus(
	_ context.Context, _ *mcpsdk.CallToolRequest, input StatusInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	pipelines, err := s.selectPipelines(input.PipelineIDs)
	if err != nil {
		return errorResult(err)
	}

	out := make([]PipelineStatus, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, PipelineStatus{
			PipelineID:       p.PipelineID(),
			TotalSplits:      p.TotalSplits(),
			CompletedDrivers: p.CompletedDrivers(),
			Status:           p.PipelineStatus(),
		})
	}

	return jsonResult(out)
}

func (s *Server) handleStats(
	_ context.Context, _ *mcpsdk.CallToolRequest, input StatsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	pipelines, err := s.selectPipelines(input.PipelineIDs)
	if err != nil {
		return errorResult(err)
	}

	out := make([]pipeline.Stats, 0, len(pipelines))
	for _, p := range pipelines {
		stats := p.Stats()
		if !input.IncludeDrivers {
			stats.Drivers = nil
		}

		out = append(out, stats)
	}

	return jsonResult(out)
}

func (s *Server) handleReport(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ReportInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.source == nil {
		return errorResult(ErrNoSource)
	}

	report := s.source.Report()
	if !input.IncludeSamples {
		report.Samples = nil
	}

	return jsonResult(report)
}

// selectPipelines returns the pipelines named by ids, or all of them when
// ids is empty.
func (s *Server) selectPipelines(ids []int) ([]*pipeline.Context, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}

	all := s.source.Pipelines()
	if len(ids) == 0 {
		return all, nil
	}

	selected := make([]*pipeline.Context, 0, len(ids))

	for _, id := range ids {
		idx := slices.IndexFunc(all, func(p *pipeline.Context) bool { return p.PipelineID() == id })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %d", ErrUnknownPipeline, id)
		}

		selected = append(selected, all[idx])
	}

	return selected, nil
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
