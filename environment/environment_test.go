package environment

import (
	"context"
	"errors"
	"testing"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/deferredtask"
)

// Scenario 1: snapshot isolation (spec.md §8).
func TestSnapshotIsolation(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	tA, err := env.BeginTransaction(BeginOptions{})
	if err != nil {
		t.Fatalf("begin A: %v", err)
	}
	sA := mustOpenStore(t, tA, env, "S")

	tB, err := env.BeginReadonlyTransaction(BeginOptions{})
	if err != nil {
		t.Fatalf("begin B: %v", err)
	}
	sB := mustOpenStore(t, tB, env, "S")
	if _, ok := sB.Get([]byte("x\x00")); ok {
		t.Fatalf("T_B should not see T_A's uncommitted write")
	}

	if err := sA.Put([]byte("x\x00"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err := tA.Flush(false)
	if err != nil || !ok {
		t.Fatalf("flush A: ok=%v err=%v", ok, err)
	}

	if _, ok := sB.Get([]byte("x\x00")); ok {
		t.Fatalf("T_B must still observe its original snapshot before revert")
	}

	if err := tB.Revert(); err != nil {
		t.Fatalf("revert B: %v", err)
	}
	sB2 := mustOpenStore(t, tB, env, "S")
	v, ok := sB2.Get([]byte("x\x00"))
	if !ok || string(v) != "1" {
		t.Fatalf("expected T_B to see \"1\" after revert, got %q ok=%v", v, ok)
	}
}

// Scenario 2: commit conflict, revert, re-flush (spec.md §8).
func TestCommitConflictRevertReflush(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	tA, _ := env.BeginTransaction(BeginOptions{})
	tB, _ := env.BeginTransaction(BeginOptions{})

	sA := mustOpenStore(t, tA, env, "S")
	sB := mustOpenStore(t, tB, env, "S")
	sA.Put([]byte("a\x00"), []byte("1"))
	sB.Put([]byte("b\x00"), []byte("2"))

	ok, err := tA.Flush(false)
	if err != nil || !ok {
		t.Fatalf("flush A: ok=%v err=%v", ok, err)
	}

	ok, err = tB.Flush(false)
	if err != nil {
		t.Fatalf("flush B: %v", err)
	}
	if ok {
		t.Fatalf("expected flush B to report a stale snapshot (false)")
	}

	if err := tB.Revert(); err != nil {
		t.Fatalf("revert B: %v", err)
	}
	sB2 := mustOpenStore(t, tB, env, "S")
	sB2.Put([]byte("b\x00"), []byte("2"))
	ok, err = tB.Flush(false)
	if err != nil || !ok {
		t.Fatalf("re-flush B: ok=%v err=%v", ok, err)
	}
}

// Scenario 3: idempotent fast path (spec.md §8).
func TestIdempotentFastPath(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	t1, _ := env.BeginReadonlyTransaction(BeginOptions{})
	before := log.HighAddress()
	ok, err := t1.Flush(false)
	if err != nil || !ok {
		t.Fatalf("flush: ok=%v err=%v", ok, err)
	}
	if log.HighAddress() != before {
		t.Fatalf("expected idempotent flush to leave the log's high address unchanged")
	}
}

// Scenario 4: rollback on append failure (spec.md §8).
func TestRollbackOnAppendFailure(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	txn, _ := env.BeginTransaction(BeginOptions{})
	s := mustOpenStore(t, txn, env, "S")
	s.Put([]byte("a\x00"), []byte("1"))

	before := log.HighAddress()
	log.failNextAppend = true

	ok, err := txn.Flush(false)
	if ok {
		t.Fatalf("expected flush to fail")
	}
	var kerr kvenv.Error
	if !errors.As(err, &kerr) || kerr.Code != kvenv.TransactionFailed {
		t.Fatalf("expected TransactionFailed, got %v", err)
	}
	if log.HighAddress() != before {
		t.Fatalf("expected log high address rolled back to pre-commit value")
	}
	if err := env.checkIsOperative(); err != nil {
		t.Fatalf("environment should still be operative after a successful rollback: %v", err)
	}
}

// Scenario 5: inoperative latch (spec.md §8).
func TestInoperativeLatch(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	txn, _ := env.BeginTransaction(BeginOptions{})
	s := mustOpenStore(t, txn, env, "S")
	s.Put([]byte("a\x00"), []byte("1"))

	log.failNextAppend = true
	log.failNextSetHighAddress = true

	ok, err := txn.Flush(false)
	if ok || err == nil {
		t.Fatalf("expected flush to fail when both append and rollback fail")
	}

	if _, err := env.BeginTransaction(BeginOptions{}); err == nil {
		t.Fatalf("expected BeginTransaction to fail with Inoperative")
	} else {
		var kerr kvenv.Error
		if !errors.As(err, &kerr) || kerr.Code != kvenv.Inoperative {
			t.Fatalf("expected Inoperative, got %v", err)
		}
	}
}

// Scenario 6: deferred task gating (spec.md §8).
func TestDeferredTaskGating(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	t1, _ := env.BeginTransaction(BeginOptions{})
	ran := false
	env.deferred.Register(deferredtask.Task{
		RootAtRegistration: t1.SnapshotRoot(),
		Run:                func(ctx context.Context) { ran = true },
	})

	t2, _ := env.BeginTransaction(BeginOptions{})
	t1.Abort()
	env.deferred.Drain(env.ctx)
	if ran {
		t.Fatalf("deferred task should not run while T2 is still rooted at or before its registration root")
	}

	writer, _ := env.BeginTransaction(BeginOptions{})
	mustOpenStore(t, writer, env, "S").Put([]byte("k\x00"), []byte("v"))
	ok, err := writer.Flush(false)
	if err != nil || !ok {
		t.Fatalf("writer flush: ok=%v err=%v", ok, err)
	}

	t2.Abort()
	env.deferred.Drain(env.ctx)
	if !ran {
		t.Fatalf("deferred task should have run once the oldest live root advanced past its registration root")
	}
}

// Scenario 7: clone-meta transactions observe each other's writes and commit as one unit
// (spec.md §4.1).
func TestCloneMetaTransactionSharesWrites(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	parent, err := env.BeginTransaction(BeginOptions{})
	if err != nil {
		t.Fatalf("begin parent: %v", err)
	}
	sParent := mustOpenStore(t, parent, env, "S")
	if err := sParent.Put([]byte("a\x00"), []byte("1")); err != nil {
		t.Fatalf("put via parent: %v", err)
	}

	clone, err := env.BeginCloneMetaTransaction(parent, BeginOptions{})
	if err != nil {
		t.Fatalf("begin clone: %v", err)
	}
	sClone := mustOpenStore(t, clone, env, "S")
	if v, ok := sClone.Get([]byte("a\x00")); !ok || string(v) != "1" {
		t.Fatalf("clone should observe parent's uncommitted write, got %q ok=%v", v, ok)
	}
	if err := sClone.Put([]byte("b\x00"), []byte("2")); err != nil {
		t.Fatalf("put via clone: %v", err)
	}
	if v, ok := sParent.Get([]byte("b\x00")); !ok || string(v) != "2" {
		t.Fatalf("parent should observe clone's write through the shared mut state, got %q ok=%v", v, ok)
	}

	ok, err := clone.Flush(false)
	if err != nil || !ok {
		t.Fatalf("flush clone: ok=%v err=%v", ok, err)
	}

	reader, _ := env.BeginReadonlyTransaction(BeginOptions{})
	sReader := mustOpenStore(t, reader, env, "S")
	if v, ok := sReader.Get([]byte("a\x00")); !ok || string(v) != "1" {
		t.Fatalf("expected committed a=1, got %q ok=%v", v, ok)
	}
	if v, ok := sReader.Get([]byte("b\x00")); !ok || string(v) != "2" {
		t.Fatalf("expected committed b=2, got %q ok=%v", v, ok)
	}
}

func TestCloneMetaTransactionRejectsReadonlyParent(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	parent, err := env.BeginReadonlyTransaction(BeginOptions{})
	if err != nil {
		t.Fatalf("begin parent: %v", err)
	}
	if _, err := env.BeginCloneMetaTransaction(parent, BeginOptions{}); err == nil {
		t.Fatalf("expected BeginCloneMetaTransaction to reject a read-only parent")
	}
}

func TestCloneMetaTransactionCannotRevertIndependently(t *testing.T) {
	log := newFaultyLog()
	env := newTestEnv(t, log)

	parent, _ := env.BeginTransaction(BeginOptions{})
	clone, err := env.BeginCloneMetaTransaction(parent, BeginOptions{})
	if err != nil {
		t.Fatalf("begin clone: %v", err)
	}
	if err := clone.Revert(); err == nil {
		t.Fatalf("expected Revert on a clone-meta transaction to fail")
	}
}
