package pipeline

// Status is a point-in-time classification of a pipeline's drivers.
type Status struct {
	QueuedDrivers                  int   `json:"queued_drivers"                    yaml:"queued_drivers"`
	RunningDrivers                 int   `json:"running_drivers"                   yaml:"running_drivers"`
	BlockedDrivers                 int   `json:"blocked_drivers"                   yaml:"blocked_drivers"`
	QueuedPartitionedDrivers       int   `json:"queued_partitioned_drivers"        yaml:"queued_partitioned_drivers"`
	QueuedPartitionedSplitsWeight  int64 `json:"queued_partitioned_splits_weight"  yaml:"queued_partitioned_splits_weight"`
	RunningPartitionedDrivers      int   `json:"running_partitioned_drivers"       yaml:"running_partitioned_drivers"`
	RunningPartitionedSplitsWeight int64 `json:"running_partitioned_splits_weight" yaml:"running_partitioned_splits_weight"`
}

// DriverState is the part of a driver the status projection reads.
type DriverState interface {
	IsExecutionStarted() bool
	IsFullyBlocked() bool
	SplitWeight() int64
}

// StatusInput holds the counters a status is projected from. They are read
// independently and may disagree with each other and with the driver list.
type StatusInput struct {
	Partitioned bool
	TotalSplits int64
	// CompletedDrivers counts retired drivers.
	CompletedDrivers int64
	// ActiveWeight is total split weight minus completed split weight.
	ActiveWeight int64
}

// ProjectStatus classifies drivers as queued, running or blocked.
//
// For partitioned pipelines, splits assigned but not yet turned into drivers
// count as queued, so queued drivers are derived from the split counters and
// clamped at zero. Queued weight is zeroed when negative or when no driver
// is queued.
func ProjectStatus[D DriverState](in StatusInput, drivers []D) Status {
	var (
		running, blocked, notStarted int
		runningWeight, blockedWeight int64
	)

	for _, d := range drivers {
		switch {
		case !d.IsExecutionStarted():
			notStarted++
		case d.IsFullyBlocked():
			blocked++
			if in.Partitioned {
				blockedWeight += d.SplitWeight()
			}
		default:
			running++
			if in.Partitioned {
				runningWeight += d.SplitWeight()
			}
		}
	}

	if !in.Partitioned {
		return Status{
			QueuedDrivers:  notStarted,
			RunningDrivers: running,
			BlockedDrivers: blocked,
		}
	}

	queued := max(in.TotalSplits-int64(running)-int64(blocked)-in.CompletedDrivers, 0)

	queuedWeight := in.ActiveWeight - runningWeight - blockedWeight
	if queued == 0 || queuedWeight < 0 {
		queuedWeight = 0
	}

	return Status{
		QueuedDrivers:                  int(queued),
		RunningDrivers:                 running,
		BlockedDrivers:                 blocked,
		QueuedPartitionedDrivers:       int(queued),
		QueuedPartitionedSplitsWeight:  queuedWeight,
		RunningPartitionedDrivers:      running,
		RunningPartitionedSplitsWeight: runningWeight,
	}
}

// PipelineStatus projects the current status of the pipeline.
func (c *Context) PipelineStatus() Status {
	return ProjectStatus(c.statusInput(), c.activeDrivers())
}

func (c *Context) statusInput() StatusInput {
	in := StatusInput{
		Partitioned:      c.partitioned,
		TotalSplits:      c.totalSplits.Load(),
		CompletedDrivers: c.completedDrivers.Load(),
	}

	if c.partitioned {
		in.ActiveWeight = c.totalSplitWeight.Load() - c.completedSplitWeight.Load()
	}

	return in
}

// TotalSplits returns the number of splits assigned so far.
func (c *Context) TotalSplits() int64 { return c.totalSplits.Load() }

// TotalSplitWeight returns the weight of splits assigned so far.
func (c *Context) TotalSplitWeight() int64 { return c.totalSplitWeight.Load() }

// CompletedDrivers returns the number of retired drivers.
func (c *Context) CompletedDrivers() int64 { return c.completedDrivers.Load() }

// CompletedSplitWeight returns the split weight of retired drivers.
func (c *Context) CompletedSplitWeight() int64 { return c.completedSplitWeight.Load() }
