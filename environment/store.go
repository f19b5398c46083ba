package environment

import (
	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/metatree"
)

// Store is a transaction-scoped handle to a named tree, returned by OpenStore.
type Store struct {
	name string
	info metatree.TreeMetaInfo
	txn  *Transaction
}

// Name returns the store's registered name.
func (s *Store) Name() string { return s.name }

// Get reads key from the store as of the owning transaction's snapshot (or its own uncommitted
// writes, if any have been made this transaction).
func (s *Store) Get(key []byte) ([]byte, bool) {
	if mt, ok := s.txn.mut.mutableTrees[s.name]; ok {
		return mt.Get(key)
	}
	if s.info.DataRoot == kvenv.NoAddress {
		return nil, false
	}
	snap, found, err := s.txn.env.treeStore.Open(s.txn.env.ctx, s.info.DataRoot)
	if err != nil || !found {
		return nil, false
	}
	return snap.Get(key)
}

// Put writes key/value, lazily materializing this store's mutable tree copy.
func (s *Store) Put(key, value []byte) error {
	mt, err := s.txn.getMutableTree(s.name, s.info)
	if err != nil {
		return err
	}
	mt.Put(key, value)
	return nil
}

// Delete removes key, lazily materializing this store's mutable tree copy.
func (s *Store) Delete(key []byte) error {
	mt, err := s.txn.getMutableTree(s.name, s.info)
	if err != nil {
		return err
	}
	mt.Delete(key)
	return nil
}
