package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
)

const (
	metricQueuedDrivers   = "pipetrack.pipeline.drivers.queued"
	metricRunningDrivers  = "pipetrack.pipeline.drivers.running"
	metricBlockedDrivers  = "pipetrack.pipeline.drivers.blocked"
	metricQueuedWeight    = "pipetrack.pipeline.splits.queued.weight"
	metricRunningWeight   = "pipetrack.pipeline.splits.running.weight"
	metricCompleted       = "pipetrack.pipeline.drivers.completed"
	metricInputBytes      = "pipetrack.pipeline.input.bytes"
	metricInputPositions  = "pipetrack.pipeline.input.positions"
	metricOutputBytes     = "pipetrack.pipeline.output.bytes"
	metricActiveSuffix    = ".active"
	metricPhysicalWritten = "pipetrack.pipeline.physical_written.bytes"
	metricUserMemory      = "pipetrack.pipeline.memory.user.bytes"

	attrPipelineID = "pipeline.id"
	attrTaskID     = "task.id"
)

// PipelineSource lists the pipelines to report on each collection.
type PipelineSource interface {
	Pipelines() []*pipeline.Context
}

// PipelineSourceFunc adapts a function to PipelineSource.
type PipelineSourceFunc func() []*pipeline.Context

// Pipelines calls f.
func (f PipelineSourceFunc) Pipelines() []*pipeline.Context { return f() }

// PipelineMetrics exposes pipeline status and I/O as observable instruments.
// The I/O counters carry retired drivers only, so they never go down while a
// driver is between removal and fold; live driver I/O is a separate gauge.
// Collection reads the status projection and the aggregate getters only.
type PipelineMetrics struct {
	source PipelineSource

	queued          metric.Int64ObservableGauge
	running         metric.Int64ObservableGauge
	blocked         metric.Int64ObservableGauge
	queuedWeight    metric.Int64ObservableGauge
	runningWeight   metric.Int64ObservableGauge
	userMemory      metric.Int64ObservableGauge
	completed       metric.Int64ObservableCounter
	inputBytes      metric.Int64ObservableCounter
	inputPositions  metric.Int64ObservableCounter
	outputBytes     metric.Int64ObservableCounter
	activeInput     metric.Int64ObservableGauge
	activePositions metric.Int64ObservableGauge
	activeOutput    metric.Int64ObservableGauge
	physicalWritten metric.Int64ObservableGauge
}

// NewPipelineMetrics registers the pipeline instruments on mt.
func NewPipelineMetrics(mt metric.Meter, source PipelineSource) (*PipelineMetrics, error) {
	set := newInstrumentSet(mt)

	pm := &PipelineMetrics{
		source:          source,
		queued:          set.gauge(metricQueuedDrivers, "Drivers waiting to start, including unassigned splits", "{driver}"),
		running:         set.gauge(metricRunningDrivers, "Started drivers that are not blocked", "{driver}"),
		blocked:         set.gauge(metricBlockedDrivers, "Started drivers that are fully blocked", "{driver}"),
		queuedWeight:    set.gauge(metricQueuedWeight, "Split weight of queued partitioned drivers", "{weight}"),
		runningWeight:   set.gauge(metricRunningWeight, "Split weight of running partitioned drivers", "{weight}"),
		userMemory:      set.gauge(metricUserMemory, "User memory reserved by the pipeline", "By"),
		completed:       set.observableCounter(metricCompleted, "Drivers retired by the pipeline", "{driver}"),
		inputBytes:      set.observableCounter(metricInputBytes, "Processed input bytes of retired drivers", "By"),
		inputPositions:  set.observableCounter(metricInputPositions, "Processed input rows of retired drivers", "{row}"),
		outputBytes:     set.observableCounter(metricOutputBytes, "Output bytes of retired drivers", "By"),
		activeInput:     set.gauge(metricInputBytes+metricActiveSuffix, "Processed input bytes of active drivers", "By"),
		activePositions: set.gauge(metricInputPositions+metricActiveSuffix, "Processed input rows of active drivers", "{row}"),
		activeOutput:    set.gauge(metricOutputBytes+metricActiveSuffix, "Output bytes of active drivers", "By"),
		physicalWritten: set.gauge(metricPhysicalWritten, "Bytes written by active drivers", "By"),
	}

	err := set.register(pm.observe)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

func (pm *PipelineMetrics) observe(_ context.Context, obs metric.Observer) error {
	for _, p := range pm.source.Pipelines() {
		attrs := metric.WithAttributes(
			attribute.String(attrPipelineID, strconv.Itoa(p.PipelineID())),
			attribute.String(attrTaskID, p.Task().TaskID().String()),
		)

		status := p.PipelineStatus()

		obs.ObserveInt64(pm.queued, int64(status.QueuedDrivers), attrs)
		obs.ObserveInt64(pm.running, int64(status.RunningDrivers), attrs)
		obs.ObserveInt64(pm.blocked, int64(status.BlockedDrivers), attrs)
		obs.ObserveInt64(pm.queuedWeight, status.QueuedPartitionedSplitsWeight, attrs)
		obs.ObserveInt64(pm.runningWeight, status.RunningPartitionedSplitsWeight, attrs)
		obs.ObserveInt64(pm.userMemory, p.MemoryContext().UserMemory(), attrs)
		obs.ObserveInt64(pm.completed, p.CompletedDrivers(), attrs)

		input := p.ProcessedInputDataSize()
		positions := p.InputPositions()
		output := p.OutputDataSize()

		obs.ObserveInt64(pm.inputBytes, input.Completed, attrs)
		obs.ObserveInt64(pm.inputPositions, positions.Completed, attrs)
		obs.ObserveInt64(pm.outputBytes, output.Completed, attrs)
		obs.ObserveInt64(pm.activeInput, input.Active, attrs)
		obs.ObserveInt64(pm.activePositions, positions.Active, attrs)
		obs.ObserveInt64(pm.activeOutput, output.Active, attrs)
		obs.ObserveInt64(pm.physicalWritten, p.PhysicalWrittenDataSize(), attrs)
	}

	return nil
}
