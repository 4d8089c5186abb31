package task_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

func newTask(t *testing.T, cfg task.Config) *task.Context {
	t.Helper()

	id := task.ID{QueryID: "q1", StageID: 2, PartitionID: 3}

	return task.New(id, task.Session{User: "alice", Properties: map[string]string{"spill_enabled": "true"}}, cfg)
}

func TestID_String(t *testing.T) {
	t.Parallel()

	id := task.ID{QueryID: "20261017_0001", StageID: 1, PartitionID: 4, AttemptID: 2}

	assert.Equal(t, "20261017_0001.1.4.2", id.String())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "RUNNING", task.StateRunning.String())
	assert.Equal(t, "UNKNOWN", task.State(42).String())
	assert.True(t, task.StateAborted.IsDone())
	assert.False(t, task.StateFlushing.IsDone())
}

func TestContext_Lifecycle(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{})

	assert.Equal(t, task.StatePlanned, tc.State())
	assert.True(t, tc.StartedAt().IsZero())

	tc.Start()
	first := tc.StartedAt()
	tc.Start()

	assert.Equal(t, task.StateRunning, tc.State())
	assert.Equal(t, first, tc.StartedAt(), "start time is recorded once")

	assert.True(t, tc.Flushing())
	assert.True(t, tc.Finish())
	assert.False(t, tc.Cancel(), "terminal states are final")
	assert.True(t, tc.IsDone())
	assert.False(t, tc.EndedAt().IsZero())

	select {
	case <-tc.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestContext_FailedKeepsFirstCause(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{})
	first := errors.New("driver exploded")

	tc.Failed(first)
	tc.Failed(errors.New("second"))

	assert.Equal(t, task.StateFailed, tc.State())
	require.ErrorIs(t, tc.FailureCause(), first)
}

func TestContext_FailedAfterFinishIsIgnored(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{})
	tc.Finish()
	tc.Failed(errors.New("late"))

	assert.Equal(t, task.StateFinished, tc.State())
	assert.NoError(t, tc.FailureCause())
}

func TestContext_SessionIsCopied(t *testing.T) {
	t.Parallel()

	props := map[string]string{"k": "v"}
	tc := task.New(task.ID{QueryID: "q"}, task.Session{Properties: props}, task.Config{})
	props["k"] = "changed"

	v, ok := tc.Session().Property("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestReserveSpill_ImmediateWithinBudget(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 100})

	f := tc.ReserveSpill(60)
	require.True(t, f.IsDone())
	require.NoError(t, f.Err())

	reserved, pending := tc.SpillUsage()
	assert.Equal(t, int64(60), reserved)
	assert.Zero(t, pending)
}

func TestReserveSpill_WaitsForFree(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 100})

	require.NoError(t, tc.ReserveSpill(80).Err())

	waiting := tc.ReserveSpill(50)
	assert.False(t, waiting.IsDone())

	_, pending := tc.SpillUsage()
	assert.Equal(t, int64(50), pending)

	require.NoError(t, tc.FreeSpill(40))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, waiting.Wait(ctx))

	reserved, _ := tc.SpillUsage()
	assert.Equal(t, int64(90), reserved)
}

func TestReserveSpill_TooLargeFailsImmediately(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 100})

	f := tc.ReserveSpill(101)

	require.True(t, f.IsDone())
	require.ErrorIs(t, f.Err(), task.ErrSpillLimitExceeded)
}

func TestReserveSpill_PendingFailsWhenTaskEnds(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 10})
	require.NoError(t, tc.ReserveSpill(10).Err())

	waiting := tc.ReserveSpill(5)
	tc.Cancel()

	require.ErrorIs(t, waiting.Wait(context.Background()), task.ErrTaskDone)
	require.ErrorIs(t, tc.ReserveSpill(1).Err(), task.ErrTaskDone)
}

func TestReserveSpill_BudgetClosedAfterTaskEnds(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 100})
	require.NoError(t, tc.ReserveSpill(80).Err())

	tc.Cancel()

	late := tc.ReserveSpillBudget(50)

	require.True(t, late.IsDone(), "a closed budget never queues")
	require.ErrorIs(t, late.Err(), task.ErrTaskDone)

	_, pending := tc.SpillUsage()
	assert.Zero(t, pending)
}

func TestReserveSpill_RacingCancelNeverHangs(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 100})
	require.NoError(t, tc.ReserveSpill(100).Err())

	futures := make(chan *task.Future, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for range 64 {
			futures <- tc.ReserveSpill(10)
		}
	}()

	tc.Cancel()
	<-done
	close(futures)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for f := range futures {
		require.ErrorIs(t, f.Wait(ctx), task.ErrTaskDone)
	}
}

func TestFreeSpill_Errors(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{})

	require.ErrorIs(t, tc.FreeSpill(-1), task.ErrNegativeSpill)
	require.ErrorIs(t, tc.FreeSpill(1), task.ErrSpillUnderflow)
	require.ErrorIs(t, tc.ReserveSpill(-5).Err(), task.ErrNegativeSpill)
}

func TestFuture_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{SpillLimit: 1})
	require.NoError(t, tc.ReserveSpill(1).Err())

	waiting := tc.ReserveSpill(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, waiting.Wait(ctx), context.Canceled)
	assert.NoError(t, waiting.Err(), "pending future has no error yet")
}

func TestContext_MemoryContext(t *testing.T) {
	t.Parallel()

	tc := newTask(t, task.Config{MemoryLimit: 1024})
	local := tc.MemoryContext().NewChild().NewLocalUserContext("op")

	require.NoError(t, local.SetBytes(512))
	assert.Equal(t, int64(512), tc.MemoryContext().UserMemory())
	require.Error(t, local.SetBytes(2048))
}
