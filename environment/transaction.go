package environment

import (
	"time"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/metatree"
	"github.com/SharedCode/kvenv/monitor"
)

// state is a Transaction's lifecycle state (spec.md §4.2).
type state int

const (
	stateActive state = iota
	stateFlushed
	stateReverted
	stateAborted
)

// metaOp is a pending change to the MetaTree a Transaction will apply at commit time: registering
// a new/updated store entry or removing one outright.
type metaOp struct {
	storeName string
	remove    bool
	info      metatree.TreeMetaInfo // ignored when remove is true

	// oldDataRoot is the store's previous DataRoot, superseded by this op without ever going
	// through getMutableTree/treeStore.Commit (truncate's fresh empty tree, remove's deletion).
	// kvenv.NoAddress if there was no prior tree to supersede. doCommit folds it into the
	// commit's expired-addresses batch so the GC still sees it (spec.md §4.1/§8).
	oldDataRoot kvenv.TreeAddress
}

// txnMutState holds a transaction's materialized writes: lazily copy-on-write mutable trees and
// queued MetaTree operations. A clone-meta transaction shares its parent's *txnMutState instead of
// allocating its own, so it observes the parent's prior writes and the two commit as one unit
// (spec.md §4.1's "clone-meta" flavor).
type txnMutState struct {
	mutableTrees map[string]kvenv.MutableTree
	metaOps      []metaOp
}

// Transaction is a snapshot-owning unit of work (spec.md §3 "Transaction").
type Transaction struct {
	env *Environment

	id       kvenv.UUID
	readonly bool

	snapshotRoot kvenv.TreeAddress
	snapshotMeta *metatree.MetaTree

	mut *txnMutState

	// cloneParent is non-nil for a transaction begun via BeginCloneMetaTransaction: it shares
	// mut with cloneParent and delegates Flush to it so the pair commits as a single unit.
	cloneParent *Transaction

	created        time.Time
	creatingStack  string
	st             state
	idempotent     bool
	beginHook      func()
	commitHook     func()
}

// ID implements txnset.Member.
func (t *Transaction) ID() kvenv.UUID { return t.id }

// SnapshotRoot implements txnset.Member.
func (t *Transaction) SnapshotRoot() int64 { return int64(t.snapshotRoot) }

// IsReadonly reports whether this transaction may never materialize a mutable tree.
func (t *Transaction) IsReadonly() bool { return t.readonly }

// monitorSnapshot builds the view the StuckTransactionMonitor inspects.
func (t *Transaction) monitorSnapshot() monitor.Transaction {
	return monitor.Transaction{
		ID:      t.id,
		Created: t.created,
		Stack:   t.creatingStack,
	}
}

func (t *Transaction) getMutableTree(storeName string, info metatree.TreeMetaInfo) (kvenv.MutableTree, error) {
	if t.readonly {
		return nil, kvenv.NewError(kvenv.NoTransaction, errReadonlyWrite{store: storeName})
	}
	if mt, ok := t.mut.mutableTrees[storeName]; ok {
		return mt, nil
	}
	var base kvenv.Tree
	if info.DataRoot == kvenv.NoAddress {
		base = t.env.treeStore.Empty()
	} else {
		snap, found, err := t.env.treeStore.Open(t.env.ctx, info.DataRoot)
		if err != nil {
			return nil, err
		}
		if !found {
			base = t.env.treeStore.Empty()
		} else {
			base = snap
		}
	}
	mt := t.env.treeStore.Mutate(base)
	t.mut.mutableTrees[storeName] = mt
	t.markDirty()
	return mt, nil
}

// markDirty clears idempotent on this transaction and, for a clone-meta transaction, on its
// parent too, since both will observe the write through the shared mut state.
func (t *Transaction) markDirty() {
	t.idempotent = false
	if t.cloneParent != nil {
		t.cloneParent.idempotent = false
	}
}

type errReadonlyWrite struct{ store string }

func (e errReadonlyWrite) Error() string {
	return "environment: cannot write to store " + e.store + " from a read-only transaction"
}

// Revert discards materialized mutable trees and reacquires a fresh MetaTree snapshot under the
// meta-lock (spec.md §4.2). A clone-meta transaction shares its parent's mut state and cannot be
// reverted on its own; revert the parent instead.
func (t *Transaction) Revert() error {
	if t.cloneParent != nil {
		return kvenv.NewError(kvenv.NoTransaction, errCloneRevert{})
	}
	meta, err := t.env.currentMeta()
	if err != nil {
		return err
	}
	t.snapshotMeta = meta
	t.snapshotRoot = meta.Root()
	t.mut = &txnMutState{mutableTrees: make(map[string]kvenv.MutableTree)}
	t.idempotent = true
	t.st = stateReverted
	t.env.registerLive(t)
	return nil
}

// Abort removes the transaction from the live set and sweeps deferred tasks. Idempotent on a
// terminal transaction (spec.md §5 Cancellation). A clone-meta transaction only removes its own
// handle from the live set; it never touches its parent's state.
func (t *Transaction) Abort() {
	if t.st == stateAborted || t.st == stateFlushed {
		return
	}
	t.st = stateAborted
	t.env.unregisterLive(t.id)
	t.env.deferred.Drain(t.env.ctx)
}

type errCloneRevert struct{}

func (errCloneRevert) Error() string {
	return "environment: a clone-meta transaction cannot be reverted independently of its parent"
}

// Flush implements spec.md §4.2's commit protocol, including the idempotent fast path. A
// clone-meta transaction delegates to its parent so the pair lands as a single commit unit: the
// parent's snapshot root and metaOps (which include every write made through the clone) are what
// actually gets appended.
func (t *Transaction) Flush(forceCommit bool) (bool, error) {
	if t.cloneParent != nil {
		ok, err := t.cloneParent.Flush(forceCommit)
		if ok {
			t.st = stateFlushed
			t.env.unregisterLive(t.id)
		}
		return ok, err
	}
	if !forceCommit && t.idempotent {
		if err := t.env.checkIsOperative(); err != nil {
			return false, err
		}
		return true, nil
	}
	return t.env.commit(t, forceCommit)
}
