// Package loop implements the single-threaded task queue spec §5 models
// the consensus and state-machine contexts on: "Completable-future
// chaining ... model as a task queue drained by the consensus loop".
// Grounded on the teacher's internal/pubsub.PubSubClient, whose run()
// goroutine drains a buffered channel under a graceful/force shutdown
// pair — generalized here from a broadcast fan-out bus into a
// point-to-point task queue where every submitted closure runs, in
// submission order, on exactly one goroutine.
package loop

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Loop runs every submitted function on a single goroutine, one at a time,
// in submission order. Code running on a Loop's goroutine may safely touch
// state owned exclusively by that Loop without further synchronization —
// this is how the consensus and state-machine contexts each get their
// single-threaded semantics (spec §4.E, §5).
type Loop struct {
	// mu guards the shutdown transition. A Submit call holds the read lock
	// across its send, so a concurrent Shutdown cannot close tasks out
	// from under it — the same time-of-check-to-time-of-use fix the
	// teacher's PubSubClient.Publish uses around its own channel send.
	mu    sync.RWMutex
	tasks chan func()
	wg    sync.WaitGroup

	shuttingDown atomic.Bool
	running      atomic.Bool
}

// New starts a Loop with the given task queue capacity.
func New(capacity int) *Loop {
	if capacity < 1 {
		capacity = 1
	}
	l := &Loop{tasks: make(chan func(), capacity)}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	l.running.Store(true)
	defer l.running.Store(false)

	for fn := range l.tasks {
		fn()
	}
}

// Submit enqueues fn to run on the loop's goroutine. It never blocks the
// caller waiting for fn to run, only for queue space; if the loop is
// shutting down, Submit drops fn and returns false.
func (l *Loop) Submit(fn func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.shuttingDown.Load() {
		return false
	}
	l.tasks <- fn
	return true
}

// Call enqueues fn and blocks until it has run, returning its result. Use
// for cross-context request/response hand-offs (spec §5 "completions").
func Call[T any](l *Loop, fn func() T) (T, error) {
	result := make(chan T, 1)
	ok := l.Submit(func() {
		result <- fn()
	})
	if !ok {
		var zero T
		return zero, fmt.Errorf("loop: shutting down, task dropped")
	}
	return <-result, nil
}

// Running reports whether the loop's worker goroutine is currently active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Shutdown stops accepting new tasks, drains whatever is already queued,
// and waits for the worker goroutine to exit. Idempotent.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	if l.shuttingDown.Swap(true) {
		l.mu.Unlock()
		l.wg.Wait()
		return
	}
	close(l.tasks)
	l.mu.Unlock()

	l.wg.Wait()
}
