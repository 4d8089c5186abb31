package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/memory"
)

// Config holds task construction parameters. Zero values mean unlimited.
type Config struct {
	// SpillLimit caps the bytes all pipelines of the task may spill at once.
	SpillLimit int64

	// MemoryLimit caps user and system memory of the task's accounting tree.
	MemoryLimit int64

	// CPUTimerEnabled enables driver-level CPU accounting.
	CPUTimerEnabled bool

	// PerOperatorCPUTimerEnabled enables operator-level CPU accounting.
	PerOperatorCPUTimerEnabled bool

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger
}

// Context is the owning task of one or more pipelines. It is safe for concurrent use.
type Context struct {
	id      ID
	session Session
	cfg     Config
	logger  *slog.Logger

	state     atomic.Int32
	doneCh    chan struct{}
	doneOnce  sync.Once
	failMu    sync.Mutex
	failCause error

	createdAt time.Time
	startedAt atomic.Pointer[time.Time]
	endedAt   atomic.Pointer[time.Time]

	spill  spillBudget
	memory *memory.TrackingContext
}

// New creates a task in the planned state.
func New(id ID, session Session, cfg Config) *Context {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}

	return &Context{
		id:        id,
		session:   session.clone(),
		cfg:       cfg,
		logger:    lg.With(slog.String("task_id", id.String())),
		doneCh:    make(chan struct{}),
		createdAt: time.Now(),
		spill:     spillBudget{limit: cfg.SpillLimit},
		memory:    memory.NewRoot(cfg.MemoryLimit).NewChild(),
	}
}

// TaskID returns the task identity.
func (c *Context) TaskID() ID { return c.id }

// Session returns the session the task runs with.
func (c *Context) Session() Session { return c.session }

// Logger returns the task-scoped logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

// IsDone reports whether the task reached a terminal state.
func (c *Context) IsDone() bool { return c.State().IsDone() }

// Done returns a channel closed when the task reaches a terminal state.
func (c *Context) Done() <-chan struct{} { return c.doneCh }

// CreatedAt returns the task creation time.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// StartedAt returns the first start time, or the zero time if never started.
func (c *Context) StartedAt() time.Time { return loadTime(&c.startedAt) }

// EndedAt returns the terminal transition time, or the zero time while running.
func (c *Context) EndedAt() time.Time { return loadTime(&c.endedAt) }

// CPUTimerEnabled reports whether driver CPU accounting is on.
func (c *Context) CPUTimerEnabled() bool { return c.cfg.CPUTimerEnabled }

// PerOperatorCPUTimerEnabled reports whether operator CPU accounting is on.
func (c *Context) PerOperatorCPUTimerEnabled() bool { return c.cfg.PerOperatorCPUTimerEnabled }

// Start records the first start time and moves a planned task to running.
// It is called each time one of the task's pipelines starts executing.
func (c *Context) Start() {
	now := time.Now()
	c.startedAt.CompareAndSwap(nil, &now)
	c.state.CompareAndSwap(int32(StatePlanned), int32(StateRunning))
}

// Flushing moves a running task to the flushing state.
func (c *Context) Flushing() bool {
	return c.state.CompareAndSwap(int32(StateRunning), int32(StateFlushing))
}

// Finish moves the task to finished unless it is already terminal.
func (c *Context) Finish() bool {
	return c.transition(StateFinished)
}

// Cancel moves the task to canceled unless it is already terminal.
func (c *Context) Cancel() bool {
	return c.transition(StateCanceled)
}

// Abort moves the task to aborted unless it is already terminal.
func (c *Context) Abort() bool {
	return c.transition(StateAborted)
}

// Failed records cause and moves the task to failed. Only the first cause
// of a task is kept; later failures are logged and dropped.
func (c *Context) Failed(cause error) {
	if cause == nil {
		cause = errors.New("unknown failure")
	}

	c.failMu.Lock()
	failed := c.transition(StateFailed)
	if failed {
		c.failCause = cause
	}
	c.failMu.Unlock()

	if !failed {
		c.logger.Debug("task: ignoring failure after terminal state", slog.Any("error", cause))

		return
	}

	c.logger.Warn("task: failed", slog.Any("error", cause))
}

// FailureCause returns the first recorded failure, if any.
func (c *Context) FailureCause() error {
	c.failMu.Lock()
	defer c.failMu.Unlock()

	return c.failCause
}

func (c *Context) transition(to State) bool {
	for {
		cur := State(c.state.Load())
		if cur.IsDone() {
			return false
		}

		if c.state.CompareAndSwap(int32(cur), int32(to)) {
			c.onTerminal(to)

			return true
		}
	}
}

func (c *Context) onTerminal(to State) {
	c.doneOnce.Do(func() {
		now := time.Now()
		c.endedAt.Store(&now)
		c.spill.abort(fmt.Errorf("%w: %s", ErrTaskDone, to))
		close(c.doneCh)
		c.logger.Debug("task: terminal state", slog.String("state", to.String()))
	})
}

// ReserveSpill requests bytes from the task spill budget. The returned future
// completes immediately when the bytes fit, later when enough bytes are freed,
// or with an error when the request can never be satisfied.
func (c *Context) ReserveSpill(bytes int64) *Future {
	if c.IsDone() {
		return resolvedFuture(ErrTaskDone)
	}

	future := c.spill.reserve(bytes)

	err := future.Err()
	if err != nil {
		c.logger.Warn("task: spill reservation rejected", slog.Int64("bytes", bytes), slog.Any("error", err))
	}

	return future
}

// FreeSpill returns bytes to the task spill budget.
func (c *Context) FreeSpill(bytes int64) error {
	return c.spill.free(bytes)
}

// SpillUsage returns reserved bytes and bytes of reservations still waiting.
func (c *Context) SpillUsage() (reserved, pending int64) {
	return c.spill.reserved()
}

// MemoryContext returns the task's node of the memory accounting tree.
// Pipelines create their contexts with NewChild.
func (c *Context) MemoryContext() *memory.TrackingContext {
	return c.memory
}

func loadTime(p *atomic.Pointer[time.Time]) time.Time {
	if t := p.Load(); t != nil {
		return *t
	}

	return time.Time{}
}
