package driver_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
	"github.com/Sumatoshi-tech/pipetrack/pkg/memory"
	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
)

type fakeParent struct {
	mu       sync.Mutex
	finished []driver.Stats
	failures []error
	err      error
}

func (f *fakeParent) PipelineID() int { return 7 }

func (f *fakeParent) DriverFinished(d *driver.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.finished = append(f.finished, d.Stats())

	return f.err
}

func (f *fakeParent) Failed(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = append(f.failures, cause)
}

func newDriver(parent driver.Parent) *driver.Context {
	return driver.New(parent, memory.NewRoot(0).NewChild(), driver.Options{Lifespan: "TaskWide", SplitWeight: 4, Partitioned: true})
}

func TestContext_StateMachine(t *testing.T) {
	t.Parallel()

	d := newDriver(&fakeParent{})

	assert.Equal(t, driver.StateNotStarted, d.State())
	assert.False(t, d.IsExecutionStarted())

	d.Block(operator.BlockedWaitingForInput)
	assert.Equal(t, driver.StateNotStarted, d.State(), "a queued driver cannot block")

	d.Start()
	assert.True(t, d.IsExecutionStarted())
	assert.Equal(t, driver.StateRunning, d.State())

	d.Block(operator.BlockedWaitingForOutput)
	d.Block(operator.BlockedWaitingForMemory)
	d.Block(operator.BlockedWaitingForOutput)
	assert.True(t, d.IsFullyBlocked())

	stats := d.Stats()
	assert.True(t, stats.FullyBlocked)
	assert.Equal(t, []operator.BlockedReason{
		operator.BlockedWaitingForMemory,
		operator.BlockedWaitingForOutput,
	}, stats.BlockedReasons)

	d.Unblock()
	assert.Equal(t, driver.StateRunning, d.State())
	assert.Empty(t, d.Stats().BlockedReasons)

	require.NoError(t, d.Finish())
	assert.True(t, d.IsFinished())
	assert.Equal(t, "FINISHED", d.State().String())
}

func TestContext_FinishRetiresOnce(t *testing.T) {
	t.Parallel()

	parent := &fakeParent{}
	d := newDriver(parent)
	d.Start()

	require.NoError(t, d.Finish())
	require.NoError(t, d.Finish())

	assert.Len(t, parent.finished, 1)
	assert.True(t, parent.finished[0].Ended())
}

func TestContext_FinishReturnsParentError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("unknown driver")
	d := newDriver(&fakeParent{err: sentinel})

	require.ErrorIs(t, d.Finish(), sentinel)
	require.ErrorIs(t, d.Finish(), sentinel)
}

func TestContext_FailedForwardsAndRetires(t *testing.T) {
	t.Parallel()

	parent := &fakeParent{}
	d := newDriver(parent)
	d.Start()
	d.RecordOutput(10, 1)

	cause := errors.New("operator crashed")
	err := d.Failed(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, []error{cause}, parent.failures)
	require.Len(t, parent.finished, 1)
	assert.Equal(t, int64(10), parent.finished[0].OutputBytes, "partial stats are retired")
}

func TestContext_FinishWhileBlockedAccountsBlockedTime(t *testing.T) {
	t.Parallel()

	parent := &fakeParent{}
	d := newDriver(parent)
	d.Start()
	d.Block(operator.BlockedWaitingForSpill)
	time.Sleep(2 * time.Millisecond)

	require.NoError(t, d.Finish())

	stats := parent.finished[0]
	assert.False(t, stats.FullyBlocked)
	assert.GreaterOrEqual(t, stats.TotalBlockedTime, 2*time.Millisecond)
}

func TestContext_StatsCounters(t *testing.T) {
	t.Parallel()

	d := newDriver(&fakeParent{})
	d.Start()

	d.RecordScheduled(30 * time.Millisecond)
	d.RecordCPU(20 * time.Millisecond)
	d.RecordPhysicalRead(1000, 10, time.Millisecond)
	d.RecordNetworkInput(200, 2)
	d.RecordInput(1000, 10, 800, 8)
	d.RecordOutput(400, 4)
	d.RecordPhysicalWritten(64)

	op := d.AddOperator(0, "scan", "TableScanOperator")
	op.RecordAddInput(time.Millisecond, time.Millisecond, 800, 8)

	stats := d.Stats()

	assert.Equal(t, "TaskWide", stats.Lifespan)
	assert.Equal(t, int64(4), stats.SplitWeight)
	assert.Equal(t, 30*time.Millisecond, stats.TotalScheduledTime)
	assert.Equal(t, 20*time.Millisecond, stats.TotalCPUTime)
	assert.Equal(t, int64(1000), stats.PhysicalInputBytes)
	assert.Equal(t, time.Millisecond, stats.PhysicalInputReadTime)
	assert.Equal(t, int64(2), stats.InternalNetworkInputPositions)
	assert.Equal(t, int64(800), stats.ProcessedInputBytes)
	assert.Equal(t, int64(4), stats.OutputPositions)
	assert.Equal(t, int64(64), d.PhysicalWrittenBytes())
	require.Len(t, stats.Operators, 1)
	assert.Equal(t, 7, stats.Operators[0].PipelineID)
	assert.Equal(t, int64(800), stats.Operators[0].InputBytes)
	assert.True(t, stats.Started())
	assert.False(t, stats.Ended())
	assert.GreaterOrEqual(t, stats.ElapsedTime, stats.QueuedTime)
}

func TestContext_MemoryReleasedAfterFinish(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(0)
	d := driver.New(&fakeParent{}, root.NewChild(), driver.Options{})

	require.NoError(t, d.Memory().NewLocalUserContext("agg").SetBytes(128))
	assert.Equal(t, int64(128), d.Stats().UserMemory)

	require.NoError(t, d.Finish())
	assert.Zero(t, root.UserMemory())
}

func TestContext_MoreMemoryAvailable(t *testing.T) {
	t.Parallel()

	d := newDriver(&fakeParent{})

	d.MoreMemoryAvailable()
	d.MoreMemoryAvailable()

	select {
	case <-d.MemoryAvailable():
	default:
		t.Fatal("expected a memory signal")
	}

	select {
	case <-d.MemoryAvailable():
		t.Fatal("signals must not accumulate")
	default:
	}
}

func TestIO_Add(t *testing.T) {
	t.Parallel()

	a := driver.IO{RawInputBytes: 1, OutputPositions: 2, PhysicalInputReadTime: time.Second}
	b := driver.IO{RawInputBytes: 3, OutputPositions: 4, PhysicalWrittenBytes: 5}

	sum := a.Add(b)

	assert.Equal(t, int64(4), sum.RawInputBytes)
	assert.Equal(t, int64(6), sum.OutputPositions)
	assert.Equal(t, int64(5), sum.PhysicalWrittenBytes)
	assert.Equal(t, time.Second, sum.PhysicalInputReadTime)
}
