package core

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Backend abstracts the wall-independent monotonic clock, the coordinator's
// wait/notify primitive, and worker-thread spawning away from TaskRunner.
// Abstracting these permits deterministic virtual-time testing via
// FakeBackend; production code uses GoroutineBackend.
type Backend interface {
	// NanoTime returns a monotonic timestamp in nanoseconds.
	NanoTime() int64

	// CoordinatorNotify wakes the runner's current coordinator, if any.
	// Called with the runner's lock held.
	CoordinatorNotify(r *TaskRunner)

	// CoordinatorWait blocks the calling goroutine, which must hold the
	// runner's lock, until nanos elapses or CoordinatorNotify is called.
	CoordinatorWait(r *TaskRunner, nanos int64)

	// Execute submits fn to run as a new worker. Must not block the caller;
	// the reference implementation uses an unbounded pool of goroutines so
	// submission never blocks on a bounded queue.
	Execute(r *TaskRunner, fn func())

	// Decorate is a passthrough hook invoked once when a queue is created,
	// primarily useful for tests that want to observe or wrap every queue a
	// runner creates. The default implementation returns q unchanged.
	Decorate(q *TaskQueue) *TaskQueue
}

// GoroutineBackend is the production Backend: real monotonic time, the
// runner's own Lockable for coordination, and one new goroutine per
// Execute call. Goroutines are cheap enough in Go that a dedicated pool
// with a rendezvous queue (as the original systems-language design used)
// isn't necessary to get non-blocking submission.
type GoroutineBackend struct {
	group errgroup.Group
}

// NewGoroutineBackend creates a GoroutineBackend.
func NewGoroutineBackend() *GoroutineBackend {
	return &GoroutineBackend{}
}

// monotonicEpoch carries Go's monotonic clock reading, so durations measured
// from it are unaffected by wall-clock adjustments.
var monotonicEpoch = time.Now()

func (b *GoroutineBackend) NanoTime() int64 { return int64(time.Since(monotonicEpoch)) }

func (b *GoroutineBackend) CoordinatorNotify(r *TaskRunner) {
	r.guard.CoordinatorNotify()
}

func (b *GoroutineBackend) CoordinatorWait(r *TaskRunner, nanos int64) {
	r.guard.CoordinatorWait(nanos)
}

func (b *GoroutineBackend) Execute(r *TaskRunner, fn func()) {
	b.group.Go(func() error {
		fn()
		return nil
	})
}

func (b *GoroutineBackend) Decorate(q *TaskQueue) *TaskQueue { return q }

// Wait blocks until every goroutine this backend has spawned has returned.
// Intended for tests and graceful shutdown; production callers normally let
// workers drain naturally as their runners are closed.
func (b *GoroutineBackend) Wait() error {
	return b.group.Wait()
}

// FakeBackend is a virtual-time Backend for deterministic tests. NanoTime
// returns a value the test advances explicitly via Advance; CoordinatorWait
// blocks on the runner's own condition variable and is woken either by a
// real CoordinatorNotify call or by Advance crossing a waiting
// coordinator's deadline.
type FakeBackend struct {
	mu  sync.Mutex
	now int64
}

// NewFakeBackend creates a FakeBackend with its virtual clock at zero.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

func (b *FakeBackend) NanoTime() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

func (b *FakeBackend) CoordinatorNotify(r *TaskRunner) {
	r.guard.CoordinatorNotify()
}

// CoordinatorWait ignores the requested deadline and blocks until some
// caller of Advance or CoordinatorNotify wakes it; the runner's own retry
// loop re-evaluates whether the deadline has actually passed.
func (b *FakeBackend) CoordinatorWait(r *TaskRunner, nanos int64) {
	r.guard.cond.Wait()
}

func (b *FakeBackend) Execute(r *TaskRunner, fn func()) {
	go fn()
}

func (b *FakeBackend) Decorate(q *TaskQueue) *TaskQueue { return q }

// Advance moves the virtual clock forward by d and wakes the runner's
// coordinator so it can re-check whether any deadline has now passed.
func (b *FakeBackend) Advance(r *TaskRunner, d time.Duration) {
	b.mu.Lock()
	b.now += int64(d)
	b.mu.Unlock()

	r.guard.Lock()
	r.guard.cond.Broadcast()
	r.guard.Unlock()
}
