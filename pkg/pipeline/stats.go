package pipeline

import (
	"maps"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/distribution"
	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
)

// Stats is the externally reported snapshot of a pipeline: the totals of
// retired drivers plus the live contribution of active ones.
type Stats struct {
	PipelineID int `json:"pipeline_id" yaml:"pipeline_id"`

	ExecutionStart     time.Time `json:"execution_start,omitzero"      yaml:"execution_start,omitempty"`
	LastExecutionStart time.Time `json:"last_execution_start,omitzero" yaml:"last_execution_start,omitempty"`
	LastExecutionEnd   time.Time `json:"last_execution_end,omitzero"   yaml:"last_execution_end,omitempty"`

	InputPipeline  bool `json:"input_pipeline"  yaml:"input_pipeline"`
	OutputPipeline bool `json:"output_pipeline" yaml:"output_pipeline"`

	TotalDrivers     int64 `json:"total_drivers"     yaml:"total_drivers"`
	CompletedDrivers int64 `json:"completed_drivers" yaml:"completed_drivers"`
	Status           `yaml:",inline"`

	UserMemory      int64 `json:"user_memory"      yaml:"user_memory"`
	RevocableMemory int64 `json:"revocable_memory" yaml:"revocable_memory"`
	SystemMemory    int64 `json:"system_memory"    yaml:"system_memory"`

	QueuedTime  distribution.Snapshot `json:"queued_time"  yaml:"queued_time"`
	ElapsedTime distribution.Snapshot `json:"elapsed_time" yaml:"elapsed_time"`

	TotalScheduledTime time.Duration `json:"total_scheduled_time" yaml:"total_scheduled_time"`
	TotalCPUTime       time.Duration `json:"total_cpu_time"       yaml:"total_cpu_time"`
	TotalBlockedTime   time.Duration `json:"total_blocked_time"   yaml:"total_blocked_time"`

	FullyBlocked   bool                     `json:"fully_blocked"   yaml:"fully_blocked"`
	BlockedReasons []operator.BlockedReason `json:"blocked_reasons" yaml:"blocked_reasons"`

	driver.IO `yaml:",inline"`

	OperatorSummaries []operator.Stats `json:"operator_summaries" yaml:"operator_summaries"`
	Drivers           []driver.Stats   `json:"drivers"            yaml:"drivers"`
}

// Stats assembles a snapshot of the pipeline. It never modifies the
// cumulative state.
func (c *Context) Stats() Stats {
	if c.task.State().IsDone() {
		now := time.Now()
		c.executionStart.CompareAndSwap(nil, &now)
		c.lastExecutionStart.CompareAndSwap(nil, &now)
		c.lastExecutionEnd.CompareAndSwap(nil, &now)
	}

	in := c.statusInput()
	active := c.activeDrivers()
	status := ProjectStatus(in, active)

	queuedTime := c.queuedTime.Duplicate()
	elapsedTime := c.elapsedTime.Duplicate()

	scheduled := time.Duration(c.scheduledTime.Load())
	cpu := time.Duration(c.cpuTime.Load())
	blocked := time.Duration(c.blockedTime.Load())
	io := c.io.load()

	c.opMu.Lock()
	summaries := maps.Clone(c.operators)
	c.opMu.Unlock()

	drivers := make([]driver.Stats, 0, len(active))
	running := make(map[int][]operator.Stats)

	for _, d := range active {
		ds := d.Stats()
		drivers = append(drivers, ds)

		queuedTime.Add(ds.QueuedTime)
		elapsedTime.Add(ds.ElapsedTime)

		scheduled += ds.TotalScheduledTime
		cpu += ds.TotalCPUTime
		blocked += ds.TotalBlockedTime

		for _, op := range ds.Operators {
			running[op.OperatorID] = append(running[op.OperatorID], op)
		}

		io = io.Add(ds.IO)
	}

	for id, live := range running {
		if cur, ok := summaries[id]; ok {
			summaries[id] = cur.AddAll(live...)

			continue
		}

		if combined, ok := operator.Combine(live); ok {
			summaries[id] = combined
		}
	}

	fullyBlocked, reasons := blockedSummary(drivers)
	start, lastStart, lastEnd := c.ExecutionTimes()

	return Stats{
		PipelineID:         c.id,
		ExecutionStart:     start,
		LastExecutionStart: lastStart,
		LastExecutionEnd:   lastEnd,
		InputPipeline:      c.input,
		OutputPipeline:     c.output,
		TotalDrivers:       in.CompletedDrivers + int64(len(active)),
		CompletedDrivers:   in.CompletedDrivers,
		Status:             status,
		UserMemory:         c.memory.UserMemory(),
		RevocableMemory:    c.memory.RevocableMemory(),
		SystemMemory:       c.memory.SystemMemory(),
		QueuedTime:         queuedTime.Snapshot(),
		ElapsedTime:        elapsedTime.Snapshot(),
		TotalScheduledTime: scheduled,
		TotalCPUTime:       cpu,
		TotalBlockedTime:   blocked,
		FullyBlocked:       fullyBlocked,
		BlockedReasons:     reasons,
		IO:                 io,
		OperatorSummaries:  sortedSummaries(summaries),
		Drivers:            drivers,
	}
}

// blockedSummary reports whether every started, unfinished driver is fully
// blocked, and the union of their blocked reasons.
func blockedSummary(drivers []driver.Stats) (bool, []operator.BlockedReason) {
	var (
		executing int
		blocked   int
		reasons   []operator.BlockedReason
	)

	for _, ds := range drivers {
		if !ds.Started() || ds.Ended() {
			continue
		}

		executing++

		if ds.FullyBlocked {
			blocked++
		}

		reasons = append(reasons, ds.BlockedReasons...)
	}

	return executing > 0 && blocked == executing, operator.SortReasons(reasons)
}

func sortedSummaries(summaries map[int]operator.Stats) []operator.Stats {
	out := slices.Collect(maps.Values(summaries))
	operator.SortByID(out)

	return out
}
