package spill_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pipetrack/pkg/spill"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

func newTask(limit int64) *task.Context {
	return task.New(task.ID{QueryID: "spill"}, task.Session{}, task.Config{SpillLimit: limit})
}

func TestSpiller_RoundTrip(t *testing.T) {
	t.Parallel()

	tc := newTask(1 << 20)
	s := spill.New(tc, t.TempDir(), "")

	compressible := bytes.Repeat([]byte("pipeline"), 512)
	random := []byte{0x01, 0x7f, 0x33}

	n1, err := s.Spill(context.Background(), compressible)
	require.NoError(t, err)
	assert.Less(t, n1, int64(len(compressible)))

	_, err = s.Spill(context.Background(), random)
	require.NoError(t, err)

	_, err = s.Spill(context.Background(), nil)
	require.NoError(t, err)

	pages, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, compressible, pages[0])
	assert.Equal(t, random, pages[1])
	assert.Empty(t, pages[2])

	onDisk, raw := s.Usage()
	reserved, _ := tc.SpillUsage()
	assert.Equal(t, onDisk, reserved)
	assert.Equal(t, int64(len(compressible)+len(random)), raw)
	assert.Equal(t, 3, s.Pages())
}

func TestSpiller_CloseReleasesBudgetAndFile(t *testing.T) {
	t.Parallel()

	tc := newTask(1 << 20)
	s := spill.New(tc, t.TempDir(), "agg")

	_, err := s.Spill(context.Background(), []byte("payload"))
	require.NoError(t, err)

	path := s.Path()
	require.FileExists(t, path)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	reserved, _ := tc.SpillUsage()
	assert.Zero(t, reserved)

	_, err = s.Spill(context.Background(), []byte("late"))
	require.ErrorIs(t, err, spill.ErrClosed)

	_, err = s.ReadAll()
	require.ErrorIs(t, err, spill.ErrClosed)
}

func TestSpiller_WaitsForBudget(t *testing.T) {
	t.Parallel()

	page := []byte("0123456789")
	tc := newTask(40)

	first := spill.New(tc, t.TempDir(), "")
	second := spill.New(tc, t.TempDir(), "")

	_, err := first.Spill(context.Background(), page)
	require.NoError(t, err)
	_, err = first.Spill(context.Background(), page)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = second.Spill(ctx, page)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)

	go func() {
		_, spillErr := second.Spill(context.Background(), page)
		done <- spillErr
	}()

	require.NoError(t, first.Close())

	select {
	case spillErr := <-done:
		require.NoError(t, spillErr)
	case <-time.After(time.Second):
		t.Fatal("spill did not resume after budget was freed")
	}
}

func TestSpiller_PageLargerThanBudget(t *testing.T) {
	t.Parallel()

	s := spill.New(newTask(4), t.TempDir(), "")

	_, err := s.Spill(context.Background(), []byte("too large for budget"))

	require.ErrorIs(t, err, task.ErrSpillLimitExceeded)
	assert.Empty(t, s.Path())
}

func TestSpiller_NothingSpilled(t *testing.T) {
	t.Parallel()

	s := spill.New(newTask(0), "", "")

	pages, err := s.ReadAll()
	require.NoError(t, err)
	assert.Nil(t, pages)
	require.NoError(t, s.Close())
}

func TestSpiller_AbandonedReservationIsReturned(t *testing.T) {
	t.Parallel()

	page := []byte("0123456789")
	tc := newTask(20)

	holder := spill.New(tc, t.TempDir(), "")
	_, err := holder.Spill(context.Background(), page)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = spill.New(tc, t.TempDir(), "").Spill(ctx, page)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, holder.Close())

	assert.Eventually(t, func() bool {
		reserved, pending := tc.SpillUsage()

		return reserved == 0 && pending == 0
	}, time.Second, 5*time.Millisecond)
}
