package tree

import (
	"context"
	"testing"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/walog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := walog.NewMemLog()
	return NewStore(log)
}

func TestEmptyTreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := s.Empty()
	m.Put([]byte("a\x00"), []byte("1"))
	m.Put([]byte("b\x00"), []byte("2"))

	root, expired, err := s.Commit(ctx, m)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected no expired addresses for first commit, got %v", expired)
	}

	snap, found, err := s.Open(ctx, root)
	if err != nil || !found {
		t.Fatalf("open: found=%v err=%v", found, err)
	}
	if v, ok := snap.Get([]byte("a\x00")); !ok || string(v) != "1" {
		t.Fatalf("unexpected value for a: %q ok=%v", v, ok)
	}
	if _, ok := snap.Get([]byte("missing\x00")); ok {
		t.Fatalf("expected missing key to be absent")
	}
}

func TestCommitSupersedesPriorRoot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m1 := s.Empty()
	m1.Put([]byte("a\x00"), []byte("1"))
	root1, _, err := s.Commit(ctx, m1)
	if err != nil {
		t.Fatalf("commit1: %v", err)
	}

	snap1, _, _ := s.Open(ctx, root1)
	m2 := s.Mutate(snap1)
	m2.Put([]byte("a\x00"), []byte("2"))
	m2.Delete([]byte("a\x00")) // Put then Delete should net to deleted
	root2, expired, err := s.Commit(ctx, m2)
	if err != nil {
		t.Fatalf("commit2: %v", err)
	}
	if len(expired) != 1 || expired[0] != root1 {
		t.Fatalf("expected root1 (%d) to be expired, got %v", root1, expired)
	}

	snap2, found, _ := s.Open(ctx, root2)
	if !found {
		t.Fatalf("expected root2 snapshot to be found")
	}
	if _, ok := snap2.Get([]byte("a\x00")); ok {
		t.Fatalf("expected key a to be deleted in root2")
	}

	// root1 remains valid and unaffected: old bytes are never rewritten in place.
	snap1Again, found, _ := s.Open(ctx, root1)
	if !found {
		t.Fatalf("expected root1 to remain openable until GC reclaims it")
	}
	if v, ok := snap1Again.Get([]byte("a\x00")); !ok || string(v) != "1" {
		t.Fatalf("expected root1 snapshot unchanged, got %q ok=%v", v, ok)
	}
}

func TestOpenAbsentAddress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, found, err := s.Open(ctx, kvenv.NoAddress); found || err != nil {
		t.Fatalf("expected NoAddress to be absent, found=%v err=%v", found, err)
	}
	if _, found, err := s.Open(ctx, 999); found || err != nil {
		t.Fatalf("expected far-future address to be absent, found=%v err=%v", found, err)
	}
}

func TestIdempotentCommitDoesNotAppend(t *testing.T) {
	ctx := context.Background()
	log := walog.NewMemLog()
	s := NewStore(log)

	m := s.Empty()
	before := log.HighAddress()
	root, expired, err := s.Commit(ctx, m)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if root != kvenv.NoAddress {
		t.Fatalf("expected no-op commit of an untouched empty tree to keep NoAddress, got %d", root)
	}
	if len(expired) != 0 {
		t.Fatalf("expected no expired addresses, got %v", expired)
	}
	if log.HighAddress() != before {
		t.Fatalf("expected high address unchanged for an idempotent commit")
	}
}
