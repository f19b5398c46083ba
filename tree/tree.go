// Package tree is a minimal TreeStore implementation of the Tree contract spec.md §6 names as an
// external collaborator: an immutable snapshot opened at a log address, and a mutable
// copy-on-write view that commits to a new address plus the set of addresses it superseded.
//
// The real B-tree/Patricia-tree balancing algorithms and the on-disk node format are explicitly
// out of scope (spec.md §1). This package commits a tree by serializing its full set of entries
// as one record per commit and appending it through the Log — a deliberate simplification (see
// DESIGN.md) that still gives every snapshot a genuine log address and genuine "old root bytes
// stay valid until GC reclaims them" semantics, which is the part the Environment core actually
// depends on.
package tree

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/SharedCode/kvenv"
)

type entry struct {
	Key   []byte `json:"k"`
	Value []byte `json:"v"`
}

// snapshot is an immutable, sorted-by-key view of a tree as of a commit.
type snapshot struct {
	root    kvenv.TreeAddress
	entries []entry
}

func (s *snapshot) Get(key []byte) ([]byte, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return bytes.Compare(s.entries[i].Key, key) >= 0
	})
	if i < len(s.entries) && bytes.Equal(s.entries[i].Key, key) {
		return s.entries[i].Value, true
	}
	return nil, false
}

func (s *snapshot) Root() kvenv.TreeAddress {
	return s.root
}

// mutable is a copy-on-write view over a base snapshot; Put/Delete only touch the overlay until
// Commit merges it with the base.
type mutable struct {
	base    *snapshot
	overlay map[string][]byte
	deleted map[string]bool
	dirty   bool
}

func (m *mutable) Get(key []byte) ([]byte, bool) {
	k := string(key)
	if m.deleted[k] {
		return nil, false
	}
	if v, ok := m.overlay[k]; ok {
		return v, true
	}
	return m.base.Get(key)
}

func (m *mutable) Root() kvenv.TreeAddress {
	return m.base.root
}

func (m *mutable) Put(key, value []byte) {
	k := string(key)
	delete(m.deleted, k)
	cp := append([]byte(nil), value...)
	m.overlay[k] = cp
	m.dirty = true
}

func (m *mutable) Delete(key []byte) {
	k := string(key)
	delete(m.overlay, k)
	m.deleted[k] = true
	m.dirty = true
}

// Store is a TreeStore backed by a kvenv.Log.
type Store struct {
	log kvenv.Log
}

// NewStore builds a Store that persists commits through log.
func NewStore(log kvenv.Log) *Store {
	return &Store{log: log}
}

// Empty returns a brand-new empty mutable tree with no backing root yet.
func (s *Store) Empty() kvenv.MutableTree {
	return &mutable{
		base:    &snapshot{root: kvenv.NoAddress},
		overlay: make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Open returns the snapshot rooted at addr, or found=false if addr is negative or beyond the
// log's high-water mark (spec.md §4.3).
func (s *Store) Open(ctx context.Context, addr kvenv.TreeAddress) (kvenv.Tree, bool, error) {
	if addr < 0 || addr >= s.log.HighAddress() {
		return nil, false, nil
	}
	raw, err := s.log.Get(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, kvenv.NewError(kvenv.Unknown, err)
	}
	return &snapshot{root: addr, entries: entries}, true, nil
}

// Mutate returns a copy-on-write mutable copy of snap for writing. Only a snapshot returned by
// this Store's Open keeps its entries; any other Tree (including the mutable tree Empty returns)
// takes the fallback below.
func (s *Store) Mutate(snap kvenv.Tree) kvenv.MutableTree {
	ss, ok := snap.(*snapshot)
	if !ok {
		// Fallback for any other Tree: keep only its root. The rebuilt snapshot has no entries,
		// so the returned mutable tree starts empty and does not read through to snap.
		ss = &snapshot{root: snap.Root()}
	}
	return &mutable{
		base:    ss,
		overlay: make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Commit persists m's changes and returns the new root plus expired record addresses.
func (s *Store) Commit(ctx context.Context, m kvenv.MutableTree) (kvenv.TreeAddress, []kvenv.TreeAddress, error) {
	mm, ok := m.(*mutable)
	if !ok {
		return kvenv.NoAddress, nil, kvenv.NewError(kvenv.Unknown, errForeignMutableTree{})
	}
	if !mm.dirty {
		return mm.base.root, nil, nil
	}

	merged := make(map[string][]byte, len(mm.base.entries)+len(mm.overlay))
	for _, e := range mm.base.entries {
		merged[string(e.Key)] = e.Value
	}
	for k, v := range mm.overlay {
		merged[k] = v
	}
	for k := range mm.deleted {
		delete(merged, k)
	}

	entries := make([]entry, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, entry{Key: []byte(k), Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })

	raw, err := json.Marshal(entries)
	if err != nil {
		return kvenv.NoAddress, nil, kvenv.NewError(kvenv.Unknown, err)
	}
	addrs, err := s.log.Append(ctx, [][]byte{raw})
	if err != nil {
		return kvenv.NoAddress, nil, err
	}
	newRoot := addrs[0]

	var expired []kvenv.TreeAddress
	if mm.base.root != kvenv.NoAddress {
		expired = append(expired, mm.base.root)
	}
	return newRoot, expired, nil
}

type errForeignMutableTree struct{}

func (errForeignMutableTree) Error() string {
	return "tree: Commit called with a MutableTree not produced by this Store"
}
