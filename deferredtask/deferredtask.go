// Package deferredtask is the FIFO queue of transaction-safe callbacks spec.md §4.5 names: work
// gated by the oldest live transaction's snapshot root, so a task never observes a state a still-
// live reader could also observe as "current" and stale at once.
package deferredtask

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task pairs a callback with the newest MetaTree root in effect when it was registered. It may
// run only once no live transaction's snapshot root is less than or equal to RootAtRegistration.
type Task struct {
	Run                func(ctx context.Context)
	RootAtRegistration int64
}

// OldestLiveRoot is supplied by the caller (the Environment, backed by txnset.Set.OldestRoot) so
// this package never depends on the transaction set directly.
type OldestLiveRoot func() (root int64, ok bool)

// Queue is a FIFO of deferred tasks drained opportunistically (see Drain) or exhaustively at
// shutdown (see CloseWait).
type Queue struct {
	mu      sync.Mutex
	pending []Task

	oldest OldestLiveRoot

	wg sync.WaitGroup // tracks in-flight task goroutines for CloseWait's bounded drain
}

// New builds a Queue that consults oldest to decide whether the front task may run.
func New(oldest OldestLiveRoot) *Queue {
	return &Queue{oldest: oldest}
}

// Register appends t to the back of the queue.
func (q *Queue) Register(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
}

// Drain pops and runs every task at the front of the queue whose registration root is strictly
// less than the current oldest live root (or unconditionally, if no transaction is live). It
// stops at the first task that isn't yet eligible, preserving FIFO order (spec.md §5 ordering
// guarantee).
func (q *Queue) Drain(ctx context.Context) {
	for {
		t, ok := q.popEligible()
		if !ok {
			return
		}
		q.runTask(ctx, t)
	}
}

func (q *Queue) popEligible() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Task{}, false
	}
	root, live := q.oldest()
	if live && q.pending[0].RootAtRegistration >= root {
		return Task{}, false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true
}

// DrainAll runs every remaining task regardless of the root gate. Used by Environment.Close and
// Environment.Clear, where no new reader can appear to observe stale state.
func (q *Queue) DrainAll(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.runTask(ctx, t)
	}
}

// runTask executes t synchronously, logging and recovering from a panic. It does not add to the
// wg that CloseWait waits on; a task that spawns background IO should start it via Queue.Track
// from within Run so CloseWait waits for it.
func (q *Queue) runTask(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("deferred task panicked", "recover", r)
		}
	}()
	t.Run(ctx)
}

// Track registers an in-flight background operation a running Task kicked off, so CloseWait's
// bounded drain will wait for it too.
func (q *Queue) Track(fn func()) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		fn()
	}()
}

// CloseWait drains every remaining task (DrainAll) and then waits up to maxWait for any tasks
// registered via Track to finish, matching spec.md §4.5's "shared IO worker gets a bounded wait".
func (q *Queue) CloseWait(ctx context.Context, maxWait time.Duration) error {
	q.DrainAll(ctx)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		q.wg.Wait()
		close(done)
		return nil
	})

	select {
	case <-done:
		return g.Wait()
	case <-time.After(maxWait):
		return nil
	case <-gctx.Done():
		return gctx.Err()
	}
}

// Len reports the number of tasks awaiting the root gate, for observability surfaces.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
