package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
	"github.com/Sumatoshi-tech/pipetrack/pkg/units"
)

// Table renders the pipeline and operator summaries of report.
func Table(report Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %s: %s in %s\n", report.TaskID, report.State, report.Duration.Round(time.Millisecond))

	if report.Failure != "" {
		fmt.Fprintf(&b, "Failure: %s\n", report.Failure)
	}

	if report.SpilledData > 0 {
		fmt.Fprintf(&b, "Spilled: %s\n", units.FormatBytes(report.SpilledData))
	}

	b.WriteString("\n")
	b.WriteString(pipelineTable(report.Pipelines))
	b.WriteString("\n")

	if ops := operatorTable(report.Pipelines); ops != "" {
		b.WriteString("\n")
		b.WriteString(ops)
		b.WriteString("\n")
	}

	return b.String()
}

func newWriter() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	return tbl
}

func pipelineTable(stats []pipeline.Stats) string {
	tbl := newWriter()
	tbl.SetTitle("Pipelines")
	tbl.AppendHeader(table.Row{
		"ID", "Drivers", "Done", "Queued", "Running", "Blocked",
		"Scheduled", "CPU", "Blocked time", "Input", "Output", "Written", "Fully blocked",
	})

	var completed, total int64

	for _, s := range stats {
		completed += s.CompletedDrivers
		total += s.TotalDrivers

		tbl.AppendRow(table.Row{
			s.PipelineID,
			units.FormatCount(s.TotalDrivers),
			units.FormatCount(s.CompletedDrivers),
			s.QueuedDrivers,
			s.RunningDrivers,
			s.BlockedDrivers,
			s.TotalScheduledTime.Round(time.Microsecond),
			s.TotalCPUTime.Round(time.Microsecond),
			s.TotalBlockedTime.Round(time.Microsecond),
			units.FormatBytes(s.ProcessedInputBytes),
			units.FormatBytes(s.OutputBytes),
			units.FormatBytes(s.PhysicalWrittenBytes),
			s.FullyBlocked,
		})
	}

	tbl.AppendFooter(table.Row{"Total", units.FormatCount(total), units.FormatCount(completed)})

	return tbl.Render()
}

func operatorTable(stats []pipeline.Stats) string {
	tbl := newWriter()
	tbl.SetTitle("Operators")
	tbl.AppendHeader(table.Row{"Pipeline", "Op", "Type", "Drivers", "Input", "Output", "CPU", "Wall", "Spilled", "Peak memory"})

	rows := 0

	for _, s := range stats {
		for _, op := range s.OperatorSummaries {
			rows++

			tbl.AppendRow(table.Row{
				s.PipelineID,
				op.OperatorID,
				op.OperatorType,
				op.TotalDrivers,
				units.FormatBytes(op.InputBytes),
				units.FormatBytes(op.OutputBytes),
				op.TotalCPU().Round(time.Microsecond),
				op.TotalWall().Round(time.Microsecond),
				units.FormatBytes(op.SpilledBytes),
				units.FormatBytes(op.PeakTotalMemory),
			})
		}
	}

	if rows == 0 {
		return ""
	}

	return tbl.Render()
}
