// Package memory provides hierarchical memory accounting for tasks, pipelines
// and drivers.
//
// Each level owns three aggregates (user, revocable, system). A child
// aggregate keeps a non-owning pointer to its parent and reports every delta
// upward, so a pipeline's usage is the sum of its drivers' without the
// pipeline tracking byte counts itself.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Memory accounting errors.
var (
	// ErrMemoryLimitExceeded is returned when a reservation would push an
	// aggregate with a limit past that limit.
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")
	// ErrContextClosed is returned by SetBytes on a closed allocation site.
	ErrContextClosed = errors.New("memory context closed")
)

// Aggregate is a node in the accounting tree. It is safe for concurrent use.
type Aggregate struct {
	name   string
	parent *Aggregate
	limit  int64
	bytes  atomic.Int64
}

func newAggregate(name string, parent *Aggregate, limit int64) *Aggregate {
	return &Aggregate{name: name, parent: parent, limit: limit}
}

// Bytes returns the bytes currently attributed to this node and its descendants.
func (a *Aggregate) Bytes() int64 {
	return a.bytes.Load()
}

// apply adds delta to a and every ancestor. A positive delta that overflows
// any limited node is rolled back and reported.
func (a *Aggregate) apply(delta int64) error {
	var exceeded *Aggregate

	for node := a; node != nil; node = node.parent {
		total := node.bytes.Add(delta)
		if delta > 0 && node.limit > 0 && total > node.limit && exceeded == nil {
			exceeded = node
		}
	}

	if exceeded == nil {
		return nil
	}

	for node := a; node != nil; node = node.parent {
		node.bytes.Add(-delta)
	}

	return fmt.Errorf("%w: %s limit %d bytes", ErrMemoryLimitExceeded, exceeded.name, exceeded.limit)
}

// LocalContext is a leaf allocation point, typically one per operator.
type LocalContext struct {
	tag string
	agg *Aggregate

	mu     sync.Mutex
	bytes  int64
	closed bool
}

// Tag names the allocation site for diagnostics.
func (l *LocalContext) Tag() string { return l.tag }

// Bytes returns the currently reserved bytes.
func (l *LocalContext) Bytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.bytes
}

// SetBytes replaces the reservation with n bytes, reporting the delta upward.
// On a limit violation the previous reservation is kept. A closed site
// accepts no new reservations.
func (l *LocalContext) SetBytes(n int64) error {
	if n < 0 {
		return fmt.Errorf("%s: negative reservation %d", l.tag, n)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%s: %w", l.tag, ErrContextClosed)
	}

	err := l.agg.apply(n - l.bytes)
	if err != nil {
		return fmt.Errorf("%s: %w", l.tag, err)
	}

	l.bytes = n

	return nil
}

// Close releases the whole reservation. Closing twice is a no-op.
func (l *LocalContext) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// Releasing never fails.
	_ = l.agg.apply(-l.bytes)
	l.bytes = 0
	l.closed = true
}

// TrackingContext groups the user, revocable and system aggregates of one level.
type TrackingContext struct {
	user      *Aggregate
	revocable *Aggregate
	system    *Aggregate

	mu          sync.Mutex
	localSystem *LocalContext
	locals      []*LocalContext
}

// NewRoot creates a top-level context. A positive limit caps user+system
// reservations of the whole tree independently for each kind.
func NewRoot(limit int64) *TrackingContext {
	return &TrackingContext{
		user:      newAggregate("user", nil, limit),
		revocable: newAggregate("revocable", nil, 0),
		system:    newAggregate("system", nil, limit),
	}
}

// NewChild creates a context whose usage is reported into t.
func (t *TrackingContext) NewChild() *TrackingContext {
	return &TrackingContext{
		user:      newAggregate("user", t.user, 0),
		revocable: newAggregate("revocable", t.revocable, 0),
		system:    newAggregate("system", t.system, 0),
	}
}

// InitializeLocalContexts creates the level's own system allocation site
// under the given tag. Calling it again is a no-op.
func (t *TrackingContext) InitializeLocalContexts(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.localSystem == nil {
		t.localSystem = t.newLocal(tag, t.system)
	}
}

// LocalSystemContext returns the level's own system allocation site,
// initializing it with a default tag when needed.
func (t *TrackingContext) LocalSystemContext() *LocalContext {
	t.InitializeLocalContexts("local")

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.localSystem
}

// NewLocalUserContext creates a user-memory allocation site.
func (t *TrackingContext) NewLocalUserContext(tag string) *LocalContext {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.newLocal(tag, t.user)
}

// NewLocalRevocableContext creates a revocable-memory allocation site.
func (t *TrackingContext) NewLocalRevocableContext(tag string) *LocalContext {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.newLocal(tag, t.revocable)
}

func (t *TrackingContext) newLocal(tag string, agg *Aggregate) *LocalContext {
	local := &LocalContext{tag: tag, agg: agg}
	t.locals = append(t.locals, local)

	return local
}

// UserMemory returns reserved user bytes of this level and its descendants.
func (t *TrackingContext) UserMemory() int64 { return t.user.Bytes() }

// RevocableMemory returns reserved revocable bytes of this level and its descendants.
func (t *TrackingContext) RevocableMemory() int64 { return t.revocable.Bytes() }

// SystemMemory returns reserved system bytes of this level and its descendants.
func (t *TrackingContext) SystemMemory() int64 { return t.system.Bytes() }

// Close releases every allocation site created through t. Descendant
// contexts are closed by their owners.
func (t *TrackingContext) Close() {
	t.mu.Lock()
	locals := t.locals
	t.locals = nil
	t.mu.Unlock()

	for _, local := range locals {
		local.Close()
	}
}
