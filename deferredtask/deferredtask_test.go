package deferredtask

import (
	"context"
	"testing"
	"time"
)

func TestDrainGatedByOldestRoot(t *testing.T) {
	oldest := int64(0)
	live := true
	q := New(func() (int64, bool) { return oldest, live })

	ran := false
	q.Register(Task{RootAtRegistration: 0, Run: func(ctx context.Context) { ran = true }})

	q.Drain(context.Background())
	if ran {
		t.Fatalf("task registered at root 0 should not run while oldest live root is still 0")
	}

	oldest = 1
	q.Drain(context.Background())
	if !ran {
		t.Fatalf("task should run once the oldest live root advances past its registration root")
	}
}

func TestDrainRunsImmediatelyWhenNoLiveTransactions(t *testing.T) {
	q := New(func() (int64, bool) { return 0, false })
	ran := false
	q.Register(Task{RootAtRegistration: 100, Run: func(ctx context.Context) { ran = true }})
	q.Drain(context.Background())
	if !ran {
		t.Fatalf("expected task to run immediately when no transaction is live")
	}
}

func TestDrainPreservesFIFOOrder(t *testing.T) {
	q := New(func() (int64, bool) { return 0, false })
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		q.Register(Task{Run: func(ctx context.Context) { order = append(order, i) }})
	}
	q.Drain(context.Background())
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected FIFO order [0 1 2], got %v", order)
	}
}

func TestDrainAllIgnoresRootGate(t *testing.T) {
	q := New(func() (int64, bool) { return 0, true })
	ran := false
	q.Register(Task{RootAtRegistration: 0, Run: func(ctx context.Context) { ran = true }})
	q.DrainAll(context.Background())
	if !ran {
		t.Fatalf("DrainAll must run tasks unconditionally regardless of the root gate")
	}
}

func TestCloseWaitWaitsForTrackedWork(t *testing.T) {
	q := New(func() (int64, bool) { return 0, false })
	finished := false
	q.Track(func() {
		time.Sleep(10 * time.Millisecond)
		finished = true
	})
	if err := q.CloseWait(context.Background(), time.Second); err != nil {
		t.Fatalf("CloseWait: %v", err)
	}
	if !finished {
		t.Fatalf("expected tracked work to complete before CloseWait returns")
	}
}
