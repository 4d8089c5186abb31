// Package pipeline tracks the progress and statistics of one pipeline of a
// task while its drivers are created, run and retired from many goroutines.
//
// Registration, retirement and reporting never share a lock. Reports are a
// best-effort snapshot: counters are read independently of each other and of
// the active driver list, so derived queue lengths may be briefly off and are
// clamped rather than synchronized.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/distribution"
	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
	"github.com/Sumatoshi-tech/pipetrack/pkg/memory"
	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

// Contract violations. Calls returning them change nothing.
var (
	// ErrUnknownDriver indicates retirement of a driver that is not active.
	ErrUnknownDriver = errors.New("unknown driver")
	// ErrInvalidSplits indicates a negative split count or weight.
	ErrInvalidSplits = errors.New("split count and weight must be non-negative")
	// ErrWeightNotPartitioned indicates a weighted split on an unpartitioned pipeline.
	ErrWeightNotPartitioned = errors.New("split weight on unpartitioned pipeline")
	// ErrNegativeBytes indicates a negative spill release.
	ErrNegativeBytes = errors.New("bytes must be non-negative")
)

// TaskWide is the lifespan of drivers not bound to a split group.
const TaskWide = "TaskWide"

// DriverGroup returns the lifespan of drivers bound to split group id.
func DriverGroup(id int) string {
	return fmt.Sprintf("Group%d", id)
}

// exchangeTag names the pipeline's own system memory allocation site.
const exchangeTag = "ExchangeOperator"

// Task is the owning task as seen by a pipeline.
type Task interface {
	TaskID() task.ID
	Session() task.Session
	State() task.State
	IsDone() bool
	Start()
	Failed(cause error)
	ReserveSpill(bytes int64) *task.Future
	FreeSpill(bytes int64) error
	MemoryContext() *memory.TrackingContext
}

// Config describes a pipeline.
type Config struct {
	ID          int
	Input       bool
	Output      bool
	Partitioned bool

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// Context is the progress and statistics tracker of one pipeline.
type Context struct {
	task        Task
	id          int
	input       bool
	output      bool
	partitioned bool
	logger      *slog.Logger
	memory      *memory.TrackingContext

	drivers   atomic.Pointer[[]*driver.Context]
	driverSeq atomic.Int64

	totalSplits          atomic.Int64
	totalSplitWeight     atomic.Int64
	completedDrivers     atomic.Int64
	completedSplitWeight atomic.Int64

	executionStart     atomic.Pointer[time.Time]
	lastExecutionStart atomic.Pointer[time.Time]
	lastExecutionEnd   atomic.Pointer[time.Time]

	queuedTime  *distribution.Distribution
	elapsedTime *distribution.Distribution

	scheduledTime atomic.Int64
	cpuTime       atomic.Int64
	blockedTime   atomic.Int64

	io ioCounters

	opMu      sync.Mutex
	operators map[int]operator.Stats

	spillMu sync.Mutex
}

// New creates the tracker of one pipeline of t. Its memory context is a
// child of the task's.
func New(t Task, cfg Config) *Context {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}

	mem := t.MemoryContext().NewChild()
	mem.InitializeLocalContexts(exchangeTag)

	c := &Context{
		task:        t,
		id:          cfg.ID,
		input:       cfg.Input,
		output:      cfg.Output,
		partitioned: cfg.Partitioned,
		logger:      lg.With(slog.String("task_id", t.TaskID().String()), slog.Int("pipeline_id", cfg.ID)),
		memory:      mem,
		queuedTime:  distribution.New(),
		elapsedTime: distribution.New(),
		operators:   make(map[int]operator.Stats),
	}

	empty := []*driver.Context{}
	c.drivers.Store(&empty)

	c.logger.Debug("pipeline: created", slog.Bool("partitioned", cfg.Partitioned))

	return c
}

// PipelineID returns the pipeline id.
func (c *Context) PipelineID() int { return c.id }

// Task returns the owning task.
func (c *Context) Task() Task { return c.task }

// IsInputPipeline reports whether the pipeline reads task input.
func (c *Context) IsInputPipeline() bool { return c.input }

// IsOutputPipeline reports whether the pipeline produces task output.
func (c *Context) IsOutputPipeline() bool { return c.output }

// IsPartitioned reports whether drivers bind to weighted splits.
func (c *Context) IsPartitioned() bool { return c.partitioned }

// SplitsAdded records count newly assigned splits of total weight weightSum.
// The weight is kept only for partitioned pipelines.
func (c *Context) SplitsAdded(count int, weightSum int64) error {
	if count < 0 || weightSum < 0 {
		return fmt.Errorf("%w: count %d, weight %d", ErrInvalidSplits, count, weightSum)
	}

	c.totalSplits.Add(int64(count))

	if c.partitioned && weightSum != 0 {
		c.totalSplitWeight.Add(weightSum)
	}

	return nil
}

// AddDriverContext registers a task-wide driver with no split weight.
func (c *Context) AddDriverContext() *driver.Context {
	d, _ := c.AddDriverContextForSplit(TaskWide, 0)

	return d
}

// AddDriverContextForSplit registers a driver for one split of weight
// splitWeight. Unpartitioned pipelines accept only zero weight.
func (c *Context) AddDriverContextForSplit(lifespan string, splitWeight int64) (*driver.Context, error) {
	if splitWeight < 0 {
		return nil, fmt.Errorf("%w: weight %d", ErrInvalidSplits, splitWeight)
	}

	if !c.partitioned && splitWeight != 0 {
		return nil, fmt.Errorf("%w: pipeline %d, weight %d", ErrWeightNotPartitioned, c.id, splitWeight)
	}

	d := driver.New(c, c.memory.NewChild(), driver.Options{
		ID:          int(c.driverSeq.Add(1) - 1),
		Lifespan:    lifespan,
		SplitWeight: splitWeight,
		Partitioned: c.partitioned,
	})

	for {
		cur := c.drivers.Load()
		next := append(slices.Clip(*cur), d)

		if c.drivers.CompareAndSwap(cur, &next) {
			return d, nil
		}
	}
}

// activeDrivers returns the current immutable driver list.
func (c *Context) activeDrivers() []*driver.Context {
	return *c.drivers.Load()
}

// ActiveDrivers returns a snapshot of the registered, not yet retired drivers.
func (c *Context) ActiveDrivers() []*driver.Context {
	return slices.Clone(c.activeDrivers())
}

// DriverFinished retires d and folds its final stats into the pipeline
// totals. Retiring a driver that is not active returns ErrUnknownDriver.
func (c *Context) DriverFinished(d *driver.Context) error {
	return c.retire(d, d.Stats)
}

func (c *Context) retire(d *driver.Context, finalStats func() driver.Stats) error {
	if d == nil {
		return fmt.Errorf("%w: nil driver", ErrUnknownDriver)
	}

	if !c.remove(d) {
		c.logger.Warn("pipeline: retiring unknown driver", slog.Int("driver_id", d.ID()))

		return fmt.Errorf("%w: pipeline %d, driver %d", ErrUnknownDriver, c.id, d.ID())
	}

	c.fold(finalStats(), d.SplitWeight())

	return nil
}

func (c *Context) remove(d *driver.Context) bool {
	for {
		cur := c.drivers.Load()

		idx := slices.Index(*cur, d)
		if idx < 0 {
			return false
		}

		next := slices.Delete(slices.Clone(*cur), idx, idx+1)
		if c.drivers.CompareAndSwap(cur, &next) {
			return true
		}
	}
}

// fold adds the stats of one retired driver to the cumulative totals.
func (c *Context) fold(s driver.Stats, splitWeight int64) {
	now := time.Now()
	c.lastExecutionEnd.Store(&now)

	c.completedDrivers.Add(1)

	if c.partitioned {
		c.completedSplitWeight.Add(splitWeight)
	}

	c.queuedTime.Add(s.QueuedTime)
	c.elapsedTime.Add(s.ElapsedTime)

	c.scheduledTime.Add(int64(s.TotalScheduledTime))
	c.cpuTime.Add(int64(s.TotalCPUTime))
	c.blockedTime.Add(int64(s.TotalBlockedTime))

	c.opMu.Lock()
	for _, op := range s.Operators {
		if cur, ok := c.operators[op.OperatorID]; ok {
			c.operators[op.OperatorID] = cur.Add(op)
		} else {
			c.operators[op.OperatorID] = op
		}
	}
	c.opMu.Unlock()

	c.io.add(s.IO)
}

// Start records an execution start and starts the owning task.
func (c *Context) Start() {
	now := time.Now()
	c.executionStart.CompareAndSwap(nil, &now)
	c.lastExecutionStart.Store(&now)
	c.task.Start()
}

// Failed fails the owning task.
func (c *Context) Failed(cause error) {
	c.task.Failed(cause)
}

// IsDone reports whether the owning task reached a terminal state.
func (c *Context) IsDone() bool {
	return c.task.IsDone()
}

// ReserveSpill reserves bytes of the task spill budget.
func (c *Context) ReserveSpill(bytes int64) *task.Future {
	c.spillMu.Lock()
	defer c.spillMu.Unlock()

	return c.task.ReserveSpill(bytes)
}

// FreeSpill returns bytes to the task spill budget.
func (c *Context) FreeSpill(bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("%w: free %d", ErrNegativeBytes, bytes)
	}

	c.spillMu.Lock()
	defer c.spillMu.Unlock()

	return c.task.FreeSpill(bytes)
}

// MoreMemoryAvailable wakes every active driver waiting for memory.
func (c *Context) MoreMemoryAvailable() {
	for _, d := range c.activeDrivers() {
		d.MoreMemoryAvailable()
	}
}

// MemoryContext returns the pipeline's node of the memory accounting tree.
func (c *Context) MemoryContext() *memory.TrackingContext {
	return c.memory
}

// LocalSystemMemoryContext returns the pipeline's own system memory site.
func (c *Context) LocalSystemMemoryContext() *memory.LocalContext {
	return c.memory.LocalSystemContext()
}

// ExecutionTimes returns the first start, last start and last end times.
// Unset times are zero.
func (c *Context) ExecutionTimes() (start, lastStart, lastEnd time.Time) {
	return loadTime(&c.executionStart), loadTime(&c.lastExecutionStart), loadTime(&c.lastExecutionEnd)
}

func loadTime(p *atomic.Pointer[time.Time]) time.Time {
	if t := p.Load(); t != nil {
		return *t
	}

	return time.Time{}
}
