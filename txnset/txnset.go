// Package txnset is the ordered collection of live transactions spec.md §4.4 names: queryable in
// O(log n) (here, O(1)) for the oldest and newest snapshot root, tolerating the re-insertion a
// revert produces without duplicating the member.
package txnset

import (
	"sync"

	"github.com/SharedCode/kvenv"
	"golang.org/x/exp/slices"
)

// Member is anything a Set can track: a transaction identified by UUID and positioned by the
// MetaTree root it currently observes.
type Member interface {
	ID() kvenv.UUID
	SnapshotRoot() int64
}

// Set is a concurrency-safe collection of live Members kept sorted by SnapshotRoot, so Oldest and
// Newest are O(1) reads of either end — comfortably inside the O(log n) bound spec.md §4.4 asks
// for, at the cost of an O(log n) insert (binary search) plus an O(n) slice shift, which is the
// same tradeoff an in-memory ordered set makes in the teacher's own in-memory store variants.
type Set struct {
	mu      sync.RWMutex
	members []Member // sorted by SnapshotRoot ascending; ties broken by insertion order
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

func (s *Set) indexOfLocked(id kvenv.UUID) int {
	for i, m := range s.members {
		if m.ID() == id {
			return i
		}
	}
	return -1
}

// Insert adds m, or — if a member with the same ID is already present — replaces it in place
// with m's (possibly refreshed) snapshot root, re-sorting as needed. This is what lets revert
// call Insert again without producing a duplicate.
func (s *Set) Insert(m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOfLocked(m.ID()); i >= 0 {
		s.members = append(s.members[:i], s.members[i+1:]...)
	}
	// Equal roots compare as "less" so m lands after every member already holding its root.
	pos, _ := slices.BinarySearchFunc(s.members, m.SnapshotRoot(), func(x Member, root int64) int {
		if x.SnapshotRoot() <= root {
			return -1
		}
		return 1
	})
	s.members = slices.Insert(s.members, pos, m)
}

// Remove drops the member with id, if present.
func (s *Set) Remove(id kvenv.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(id); i >= 0 {
		s.members = append(s.members[:i], s.members[i+1:]...)
	}
}

// Len reports the number of live members.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Oldest returns the member with the smallest snapshot root, or ok=false if the set is empty.
func (s *Set) Oldest() (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.members) == 0 {
		return nil, false
	}
	return s.members[0], true
}

// Newest returns the member with the largest snapshot root, or ok=false if the set is empty.
func (s *Set) Newest() (Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.members) == 0 {
		return nil, false
	}
	return s.members[len(s.members)-1], true
}

// OldestRoot returns the oldest live snapshot root, or (0, false) if the set is empty. Callers
// (DeferredTaskQueue) read "no live transactions" from ok rather than from a sentinel root value.
func (s *Set) OldestRoot() (root int64, ok bool) {
	m, ok := s.Oldest()
	if !ok {
		return 0, false
	}
	return m.SnapshotRoot(), true
}
