package metatree

import (
	"context"
	"testing"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/tree"
	"github.com/SharedCode/kvenv/walog"
)

func newTestStore(t *testing.T) (*Store, kvenv.Log) {
	t.Helper()
	log := walog.NewMemLog()
	return NewStore(log, tree.NewStore(log)), log
}

func TestLoadEmptyLogYieldsEmptyMetaTree(t *testing.T) {
	s, _ := newTestStore(t)
	mt, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if mt.Root() != kvenv.NoAddress {
		t.Fatalf("expected NoAddress root for a brand new MetaTree, got %d", mt.Root())
	}
	if _, ok := mt.GetMetaInfo("nope"); ok {
		t.Fatalf("expected no stores registered in an empty MetaTree")
	}
}

func TestCommitThenLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	s, log := newTestStore(t)

	mt, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := s.Mutate(mt)
	info := TreeMetaInfo{StructureId: 257, HasDuplicates: false, KeyPrefixing: true, SlotLength: 64, Description: "orders"}
	m.Put(NameKey("orders"), EncodeMetaInfo(info))

	mt2, expired, err := s.Commit(ctx, m)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expected no expired tree roots for the first commit, got %v", expired)
	}
	if mt2.Root() == kvenv.NoAddress {
		t.Fatalf("expected a real root address after the first commit")
	}

	s2 := NewStore(log, tree.NewStore(log))
	loaded, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load after commit: %v", err)
	}
	if loaded.Root() != mt2.Root() {
		t.Fatalf("expected loaded root %d to equal committed root %d", loaded.Root(), mt2.Root())
	}
	got, ok := loaded.GetMetaInfo("orders")
	if !ok {
		t.Fatalf("expected orders store metadata to be found after reload")
	}
	if got.StructureId != 257 || !got.KeyPrefixing {
		t.Fatalf("unexpected TreeMetaInfo after round trip: %+v", got)
	}
}

func TestStructureIdInvariant(t *testing.T) {
	var counter int64
	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		id := NewStructureId(&counter)
		if id <= 0 || id&0xff == 0 {
			t.Fatalf("structure id %d violates invariant (must be >0 and low byte nonzero)", id)
		}
		if seen[id] {
			t.Fatalf("structure id %d allocated twice", id)
		}
		seen[id] = true
	}
}

func TestMetaInfoEncodeDecodeRoundTrip(t *testing.T) {
	info := TreeMetaInfo{
		StructureId:   513,
		HasDuplicates: true,
		KeyPrefixing:  false,
		SlotLength:    128,
		Description:   "a store",
		CacheConfig:   "l1",
	}
	got, err := DecodeMetaInfo(EncodeMetaInfo(info))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != info {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, info)
	}
}
