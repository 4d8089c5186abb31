package operator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
)

func sample(driverSeed int64) operator.Stats {
	return operator.Stats{
		PipelineID:      1,
		OperatorID:      3,
		PlanNodeID:      "7",
		OperatorType:    "ScanFilterAndProject",
		TotalDrivers:    1,
		AddInputCalls:   driverSeed,
		AddInputWall:    time.Duration(driverSeed) * time.Millisecond,
		GetOutputCPU:    time.Duration(driverSeed) * time.Microsecond,
		InputBytes:      driverSeed * 100,
		OutputPositions: driverSeed * 3,
		PeakUserMemory:  driverSeed * 1000,
	}
}

func TestStats_AddSumsCounters(t *testing.T) {
	t.Parallel()

	got := sample(1).Add(sample(2))

	assert.Equal(t, int64(2), got.TotalDrivers)
	assert.Equal(t, int64(3), got.AddInputCalls)
	assert.Equal(t, 3*time.Millisecond, got.AddInputWall)
	assert.Equal(t, int64(300), got.InputBytes)
	assert.Equal(t, int64(9), got.OutputPositions)
	assert.Equal(t, int64(2000), got.PeakUserMemory, "peaks take the maximum")
	assert.Equal(t, "ScanFilterAndProject", got.OperatorType)
}

func TestStats_AddIsCommutativeAndAssociative(t *testing.T) {
	t.Parallel()

	a, b, c := sample(1), sample(5), sample(11)
	b.PlanNodeID = "2"

	abc := a.AddAll(b, c)

	assert.Equal(t, abc, c.AddAll(a, b))
	assert.Equal(t, abc, b.AddAll(c, a))
	assert.Equal(t, a.Add(b.Add(c)), a.Add(b).Add(c))
	assert.Equal(t, "2", abc.PlanNodeID)
}

func TestCombine(t *testing.T) {
	t.Parallel()

	_, ok := operator.Combine(nil)
	assert.False(t, ok)

	combined, ok := operator.Combine([]operator.Stats{sample(1), sample(2), sample(3)})
	require.True(t, ok)
	assert.Equal(t, int64(3), combined.TotalDrivers)
	assert.Equal(t, int64(6), combined.AddInputCalls)
}

func TestSortReasons(t *testing.T) {
	t.Parallel()

	got := operator.SortReasons([]operator.BlockedReason{
		operator.BlockedWaitingForOutput,
		operator.BlockedWaitingForMemory,
		operator.BlockedWaitingForOutput,
	})

	assert.Equal(t, []operator.BlockedReason{
		operator.BlockedWaitingForMemory,
		operator.BlockedWaitingForOutput,
	}, got)
}

func TestSortByID(t *testing.T) {
	t.Parallel()

	list := []operator.Stats{{OperatorID: 2}, {OperatorID: 0}, {OperatorID: 1}}
	operator.SortByID(list)

	assert.Equal(t, 0, list[0].OperatorID)
	assert.Equal(t, 2, list[2].OperatorID)
}

func TestContext_Stats(t *testing.T) {
	t.Parallel()

	ctx := operator.NewContext(4, 2, "11", "HashAggregation")
	ctx.RecordAddInput(time.Millisecond, time.Microsecond, 1024, 10)
	ctx.RecordGetOutput(2*time.Millisecond, 3*time.Microsecond, 512, 5)
	ctx.RecordFinish(time.Millisecond, time.Microsecond)
	ctx.RecordBlocked(5 * time.Millisecond)
	ctx.SetMemory(4096, 1024)
	ctx.SetMemory(100, 0)

	got := ctx.Stats()

	assert.Equal(t, 4, got.PipelineID)
	assert.Equal(t, 2, got.OperatorID)
	assert.Equal(t, int64(1), got.TotalDrivers)
	assert.Equal(t, int64(1024), got.InputBytes)
	assert.Equal(t, int64(5), got.OutputPositions)
	assert.Equal(t, 5*time.Microsecond, got.TotalCPU())
	assert.Equal(t, 4*time.Millisecond, got.TotalWall())
	assert.Equal(t, int64(100), got.UserMemory)
	assert.Equal(t, int64(4096), got.PeakUserMemory)
	assert.Equal(t, int64(5120), got.PeakTotalMemory)
}
