package render

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	colorQueued  = "#5470c6"
	colorRunning = "#91cc75"
	colorBlocked = "#ee6666"
)

// Plot writes an HTML page with one queued/running/blocked chart per pipeline.
func Plot(w io.Writer, report Report) error {
	page := components.NewPage()
	page.PageTitle = "pipetrack " + report.TaskID

	for _, id := range pipelineIDs(report.Samples) {
		page.AddCharts(statusChart(id, report.Samples))
	}

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

func pipelineIDs(samples []Sample) []int {
	ids := make([]int, 0)
	for _, s := range samples {
		if !slices.Contains(ids, s.PipelineID) {
			ids = append(ids, s.PipelineID)
		}
	}

	slices.Sort(ids)

	return ids
}

func statusChart(pipelineID int, samples []Sample) *charts.Line {
	var (
		labels                    []string
		queued, running, blocked []opts.LineData
	)

	for _, s := range samples {
		if s.PipelineID != pipelineID {
			continue
		}

		labels = append(labels, s.Elapsed.Round(time.Millisecond).String())
		queued = append(queued, opts.LineData{Value: s.Status.QueuedDrivers})
		running = append(running, opts.LineData{Value: s.Status.RunningDrivers})
		blocked = append(blocked, opts.LineData{Value: s.Status.BlockedDrivers})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Pipeline %d", pipelineID), Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "8%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
		charts.WithYAxisOpts(opts.YAxis{Name: "drivers"}),
	)

	line.SetXAxis(labels)

	for _, series := range []struct {
		name  string
		color string
		data  []opts.LineData
	}{
		{"queued", colorQueued, queued},
		{"running", colorRunning, running},
		{"blocked", colorBlocked, blocked},
	} {
		line.AddSeries(series.name, series.data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: series.color}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: series.color}),
			charts.WithLineChartOpts(opts.LineChart{Stack: "drivers"}),
			charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.3)}),
		)
	}

	return line
}
