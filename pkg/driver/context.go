// Package driver implements the work unit of a pipeline: one driver processing
// one split (or the task-wide input of an unpartitioned pipeline), its
// lifecycle state and its live statistics.
package driver

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/memory"
	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
)

// State is the lifecycle state of a driver.
type State int32

// Driver states. Running and Blocked alternate until Finished.
const (
	StateNotStarted State = iota
	StateRunning
	StateBlocked
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Parent is the pipeline a driver reports to.
type Parent interface {
	PipelineID() int
	DriverFinished(d *Context) error
	Failed(cause error)
}

// Context is one driver. Record methods are called by the goroutine executing
// the driver; Stats and the state predicates may be called from anywhere.
type Context struct {
	id          int
	parent      Parent
	memory      *memory.TrackingContext
	lifespan    string
	splitWeight int64
	partitioned bool

	createdAt time.Time
	startedAt atomic.Pointer[time.Time]
	endedAt   atomic.Pointer[time.Time]
	state     atomic.Int32

	finishOnce sync.Once
	finishErr  error

	blockedMu      sync.Mutex
	blockedSince   time.Time
	blockedReasons []operator.BlockedReason
	blockedTotal   atomic.Int64

	scheduled atomic.Int64
	cpu       atomic.Int64

	physicalInputBytes     atomic.Int64
	physicalInputPositions atomic.Int64
	physicalInputReadTime  atomic.Int64
	networkInputBytes      atomic.Int64
	networkInputPositions  atomic.Int64
	rawInputBytes          atomic.Int64
	rawInputPositions      atomic.Int64
	processedInputBytes    atomic.Int64
	processedInputPos      atomic.Int64
	outputBytes            atomic.Int64
	outputPositions        atomic.Int64
	physicalWritten        atomic.Int64

	opMu      sync.Mutex
	operators []*operator.Context

	memoryAvailable chan struct{}
}

// Options describe a new driver.
type Options struct {
	// ID numbers the driver within its pipeline.
	ID          int
	Lifespan    string
	SplitWeight int64
	Partitioned bool
}

// New creates a driver bound to parent and tracking memory in mem.
// Pipelines call it from their registration path.
func New(parent Parent, mem *memory.TrackingContext, opts Options) *Context {
	return &Context{
		id:              opts.ID,
		parent:          parent,
		memory:          mem,
		lifespan:        opts.Lifespan,
		splitWeight:     opts.SplitWeight,
		partitioned:     opts.Partitioned,
		createdAt:       time.Now(),
		memoryAvailable: make(chan struct{}, 1),
	}
}

// ID returns the driver number within its pipeline.
func (c *Context) ID() int { return c.id }

// Lifespan returns the lifespan the driver was created for.
func (c *Context) Lifespan() string { return c.lifespan }

// SplitWeight returns the weight of the driver's split. It is zero for
// unpartitioned pipelines.
func (c *Context) SplitWeight() int64 { return c.splitWeight }

// IsPartitioned reports whether the driver processes a partitioned split.
func (c *Context) IsPartitioned() bool { return c.partitioned }

// Memory returns the driver's node of the memory accounting tree.
func (c *Context) Memory() *memory.TrackingContext { return c.memory }

// PipelineID returns the id of the owning pipeline.
func (c *Context) PipelineID() int { return c.parent.PipelineID() }

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

// IsExecutionStarted reports whether Start was called.
func (c *Context) IsExecutionStarted() bool { return c.startedAt.Load() != nil }

// IsFullyBlocked reports whether the driver is waiting on every operator.
func (c *Context) IsFullyBlocked() bool { return c.State() == StateBlocked }

// IsFinished reports whether the driver was retired.
func (c *Context) IsFinished() bool { return c.State() == StateFinished }

// Start marks the driver as executing. Later calls are ignored.
func (c *Context) Start() {
	now := time.Now()
	if c.startedAt.CompareAndSwap(nil, &now) {
		c.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning))
	}
}

// Block marks a running driver as fully blocked for reason. Blocking an
// already blocked driver adds the reason.
func (c *Context) Block(reason operator.BlockedReason) {
	c.blockedMu.Lock()
	defer c.blockedMu.Unlock()

	switch c.State() {
	case StateRunning:
		c.blockedSince = time.Now()
		c.blockedReasons = append(c.blockedReasons[:0], reason)
		c.state.Store(int32(StateBlocked))
	case StateBlocked:
		if !slices.Contains(c.blockedReasons, reason) {
			c.blockedReasons = append(c.blockedReasons, reason)
		}
	case StateNotStarted, StateFinished:
	}
}

// Unblock returns a blocked driver to running and accounts the blocked time.
func (c *Context) Unblock() {
	c.blockedMu.Lock()
	defer c.blockedMu.Unlock()

	if c.State() != StateBlocked {
		return
	}

	c.closeBlockedLocked(time.Now())
	c.state.Store(int32(StateRunning))
}

func (c *Context) closeBlockedLocked(now time.Time) {
	c.blockedTotal.Add(int64(now.Sub(c.blockedSince)))
	c.blockedSince = time.Time{}
	c.blockedReasons = c.blockedReasons[:0]
}

// Finish retires the driver from its pipeline. Only the first call has an
// effect; every call returns the result of the first. Memory is released
// after the pipeline folded the final stats.
func (c *Context) Finish() error {
	c.finishOnce.Do(func() {
		now := time.Now()

		c.blockedMu.Lock()
		if c.State() == StateBlocked {
			c.closeBlockedLocked(now)
		}
		c.endedAt.Store(&now)
		c.state.Store(int32(StateFinished))
		c.blockedMu.Unlock()

		c.finishErr = c.parent.DriverFinished(c)

		c.opMu.Lock()
		for _, op := range c.operators {
			op.SetMemory(0, 0)
		}
		c.opMu.Unlock()

		c.memory.Close()
	})

	return c.finishErr
}

// Failed reports cause to the pipeline and retires the driver with whatever
// statistics it accumulated.
func (c *Context) Failed(cause error) error {
	c.parent.Failed(cause)

	err := c.Finish()
	if err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

// RecordScheduled accounts wall time the driver spent scheduled on a thread.
func (c *Context) RecordScheduled(d time.Duration) { c.scheduled.Add(int64(d)) }

// RecordCPU accounts CPU time consumed by the driver.
func (c *Context) RecordCPU(d time.Duration) { c.cpu.Add(int64(d)) }

// RecordPhysicalRead accounts bytes and rows read from storage.
func (c *Context) RecordPhysicalRead(bytes, positions int64, readTime time.Duration) {
	c.physicalInputBytes.Add(bytes)
	c.physicalInputPositions.Add(positions)
	c.physicalInputReadTime.Add(int64(readTime))
}

// RecordNetworkInput accounts bytes and rows received from other workers.
func (c *Context) RecordNetworkInput(bytes, positions int64) {
	c.networkInputBytes.Add(bytes)
	c.networkInputPositions.Add(positions)
}

// RecordInput accounts raw input and the part of it that was processed.
func (c *Context) RecordInput(rawBytes, rawPositions, processedBytes, processedPositions int64) {
	c.rawInputBytes.Add(rawBytes)
	c.rawInputPositions.Add(rawPositions)
	c.processedInputBytes.Add(processedBytes)
	c.processedInputPos.Add(processedPositions)
}

// RecordOutput accounts produced bytes and rows.
func (c *Context) RecordOutput(bytes, positions int64) {
	c.outputBytes.Add(bytes)
	c.outputPositions.Add(positions)
}

// RecordPhysicalWritten accounts bytes written to external storage.
func (c *Context) RecordPhysicalWritten(bytes int64) { c.physicalWritten.Add(bytes) }

// PhysicalWrittenBytes returns bytes written to external storage so far.
func (c *Context) PhysicalWrittenBytes() int64 { return c.physicalWritten.Load() }

// AddOperator registers an operator of the driver and returns its counters.
func (c *Context) AddOperator(operatorID int, planNodeID, operatorType string) *operator.Context {
	op := operator.NewContext(c.parent.PipelineID(), operatorID, planNodeID, operatorType)

	c.opMu.Lock()
	c.operators = append(c.operators, op)
	c.opMu.Unlock()

	return op
}

// OperatorStats returns the current stats of every operator of the driver.
func (c *Context) OperatorStats() []operator.Stats {
	c.opMu.Lock()
	ops := slices.Clone(c.operators)
	c.opMu.Unlock()

	out := make([]operator.Stats, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Stats())
	}

	return out
}

// MoreMemoryAvailable wakes a driver waiting for memory. Signals do not
// accumulate beyond one.
func (c *Context) MoreMemoryAvailable() {
	select {
	case c.memoryAvailable <- struct{}{}:
	default:
	}
}

// MemoryAvailable returns the channel signaled by MoreMemoryAvailable.
func (c *Context) MemoryAvailable() <-chan struct{} { return c.memoryAvailable }

// IO returns the current input and output counters.
func (c *Context) IO() IO {
	return IO{
		PhysicalInputBytes:            c.physicalInputBytes.Load(),
		PhysicalInputPositions:        c.physicalInputPositions.Load(),
		PhysicalInputReadTime:         time.Duration(c.physicalInputReadTime.Load()),
		InternalNetworkInputBytes:     c.networkInputBytes.Load(),
		InternalNetworkInputPositions: c.networkInputPositions.Load(),
		RawInputBytes:                 c.rawInputBytes.Load(),
		RawInputPositions:             c.rawInputPositions.Load(),
		ProcessedInputBytes:           c.processedInputBytes.Load(),
		ProcessedInputPositions:       c.processedInputPos.Load(),
		OutputBytes:                   c.outputBytes.Load(),
		OutputPositions:               c.outputPositions.Load(),
		PhysicalWrittenBytes:          c.physicalWritten.Load(),
	}
}

// Stats returns a snapshot of the driver without stopping it.
func (c *Context) Stats() Stats {
	now := time.Now()
	started := loadTime(&c.startedAt)
	ended := loadTime(&c.endedAt)

	queued := now.Sub(c.createdAt)
	if !started.IsZero() {
		queued = started.Sub(c.createdAt)
	}

	elapsed := now.Sub(c.createdAt)
	if !ended.IsZero() {
		elapsed = ended.Sub(c.createdAt)
	}

	c.blockedMu.Lock()
	blocked := time.Duration(c.blockedTotal.Load())
	fullyBlocked := c.State() == StateBlocked
	var reasons []operator.BlockedReason
	if fullyBlocked {
		blocked += now.Sub(c.blockedSince)
		reasons = operator.SortReasons(c.blockedReasons)
	}
	c.blockedMu.Unlock()

	return Stats{
		DriverID:           c.id,
		Lifespan:           c.lifespan,
		SplitWeight:        c.splitWeight,
		CreateTime:         c.createdAt,
		StartTime:          started,
		EndTime:            ended,
		QueuedTime:         queued,
		ElapsedTime:        elapsed,
		UserMemory:         c.memory.UserMemory(),
		RevocableMemory:    c.memory.RevocableMemory(),
		SystemMemory:       c.memory.SystemMemory(),
		TotalScheduledTime: time.Duration(c.scheduled.Load()),
		TotalCPUTime:       time.Duration(c.cpu.Load()),
		TotalBlockedTime:   blocked,
		FullyBlocked:       fullyBlocked,
		BlockedReasons:     reasons,
		IO:                 c.IO(),
		Operators:          c.OperatorStats(),
	}
}

func loadTime(p *atomic.Pointer[time.Time]) time.Time {
	if t := p.Load(); t != nil {
		return *t
	}

	return time.Time{}
}
