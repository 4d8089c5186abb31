package task

import (
	"errors"
	"fmt"
	"sync"
)

// Spill budget errors.
var (
	// ErrSpillLimitExceeded indicates a single reservation larger than the whole budget.
	ErrSpillLimitExceeded = errors.New("spill limit exceeded")
	// ErrNegativeSpill indicates a negative reservation or release.
	ErrNegativeSpill = errors.New("spill bytes must be non-negative")
	// ErrSpillUnderflow indicates more bytes released than reserved.
	ErrSpillUnderflow = errors.New("spill release exceeds reserved bytes")
	// ErrTaskDone indicates the task reached a terminal state while a reservation waited.
	ErrTaskDone = errors.New("task is done")
)

type spillWaiter struct {
	bytes  int64
	future *Future
}

// spillBudget is the task-wide spill pool. Reservations that do not fit wait
// in FIFO order until enough bytes are released.
type spillBudget struct {
	mu      sync.Mutex
	limit   int64
	used    int64
	waiters []spillWaiter
	closed  error
}

func (b *spillBudget) reserve(bytes int64) *Future {
	if bytes < 0 {
		return resolvedFuture(fmt.Errorf("%w: %d", ErrNegativeSpill, bytes))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed != nil {
		return resolvedFuture(b.closed)
	}

	if b.limit > 0 && bytes > b.limit {
		return resolvedFuture(fmt.Errorf("%w: requested %d of %d bytes", ErrSpillLimitExceeded, bytes, b.limit))
	}

	if len(b.waiters) == 0 && b.fits(bytes) {
		b.used += bytes

		return resolvedFuture(nil)
	}

	future := newFuture()
	b.waiters = append(b.waiters, spillWaiter{bytes: bytes, future: future})

	return future
}

func (b *spillBudget) free(bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSpill, bytes)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if bytes > b.used {
		return fmt.Errorf("%w: releasing %d of %d bytes", ErrSpillUnderflow, bytes, b.used)
	}

	b.used -= bytes

	for len(b.waiters) > 0 && b.fits(b.waiters[0].bytes) {
		next := b.waiters[0]
		b.waiters = b.waiters[1:]
		b.used += next.bytes
		next.future.complete(nil)
	}

	return nil
}

func (b *spillBudget) fits(bytes int64) bool {
	return b.limit <= 0 || b.used+bytes <= b.limit
}

// abort fails every pending reservation with cause. Later reservations fail
// with the same cause.
func (b *spillBudget) abort(cause error) {
	b.mu.Lock()
	b.closed = cause
	waiters := b.waiters
	b.waiters = nil
	b.mu.Unlock()

	for _, w := range waiters {
		w.future.complete(cause)
	}
}

func (b *spillBudget) reserved() (used, pending int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range b.waiters {
		pending += w.bytes
	}

	return b.used, pending
}
