package memory_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/pkg/memory"
)

func TestTrackingContext_ChildReportsUpward(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(0)
	pipeline := root.NewChild()
	driverA := pipeline.NewChild()
	driverB := pipeline.NewChild()

	require.NoError(t, driverA.NewLocalUserContext("agg").SetBytes(100))
	require.NoError(t, driverB.NewLocalRevocableContext("sort").SetBytes(40))
	require.NoError(t, driverB.LocalSystemContext().SetBytes(7))

	assert.Equal(t, int64(100), pipeline.UserMemory())
	assert.Equal(t, int64(40), pipeline.RevocableMemory())
	assert.Equal(t, int64(7), pipeline.SystemMemory())
	assert.Equal(t, int64(100), root.UserMemory())
	assert.Equal(t, int64(0), driverB.UserMemory())
}

func TestLocalContext_SetBytesReportsDelta(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(0)
	local := root.NewChild().NewLocalUserContext("hash")

	require.NoError(t, local.SetBytes(500))
	require.NoError(t, local.SetBytes(200))

	assert.Equal(t, int64(200), local.Bytes())
	assert.Equal(t, int64(200), root.UserMemory())

	local.Close()
	assert.Zero(t, root.UserMemory())
}

func TestLocalContext_LimitRollsBack(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(1000)
	child := root.NewChild()
	local := child.NewLocalUserContext("join")

	require.NoError(t, local.SetBytes(800))

	err := local.SetBytes(1200)
	require.ErrorIs(t, err, memory.ErrMemoryLimitExceeded)

	assert.Equal(t, int64(800), local.Bytes())
	assert.Equal(t, int64(800), child.UserMemory())
	assert.Equal(t, int64(800), root.UserMemory())
}

func TestLocalContext_RejectsNegative(t *testing.T) {
	t.Parallel()

	local := memory.NewRoot(0).NewLocalUserContext("x")

	require.Error(t, local.SetBytes(-1))
}

func TestTrackingContext_CloseReleasesLocals(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(0)
	child := root.NewChild()
	child.InitializeLocalContexts("exchange")

	require.NoError(t, child.NewLocalUserContext("a").SetBytes(10))
	require.NoError(t, child.LocalSystemContext().SetBytes(5))
	assert.Equal(t, "exchange", child.LocalSystemContext().Tag())

	child.Close()

	assert.Zero(t, root.UserMemory())
	assert.Zero(t, root.SystemMemory())
}

func TestTrackingContext_WritesAfterCloseAreRejected(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(0)
	child := root.NewChild()
	user := child.NewLocalUserContext("a")

	require.NoError(t, child.LocalSystemContext().SetBytes(5))

	child.Close()

	require.ErrorIs(t, child.LocalSystemContext().SetBytes(7), memory.ErrContextClosed)
	require.ErrorIs(t, user.SetBytes(3), memory.ErrContextClosed)

	child.Close()

	assert.Zero(t, root.SystemMemory())
	assert.Zero(t, root.UserMemory())
	assert.Zero(t, child.LocalSystemContext().Bytes())
}

func TestTrackingContext_ConcurrentChildren(t *testing.T) {
	t.Parallel()

	root := memory.NewRoot(0)
	pipeline := root.NewChild()

	var wg sync.WaitGroup

	for range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			local := pipeline.NewChild().NewLocalUserContext("op")
			for i := range 100 {
				_ = local.SetBytes(int64(i))
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(32*99), root.UserMemory())
}
