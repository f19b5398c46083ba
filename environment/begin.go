package environment

import (
	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/monitor"
)

// BeginOptions configures transaction factories.
type BeginOptions struct {
	BeginHook  func()
	CommitHook func()
}

func (env *Environment) newTransaction(readonly bool, opts BeginOptions) (*Transaction, error) {
	if err := env.checkIsOperative(); err != nil {
		return nil, err
	}

	env.metaMu.RLock()
	meta := env.meta
	if opts.BeginHook != nil {
		opts.BeginHook()
	}
	env.metaMu.RUnlock()

	t := &Transaction{
		env:          env,
		id:           kvenv.NewUUID(),
		readonly:     readonly,
		snapshotRoot: meta.Root(),
		snapshotMeta: meta,
		mut:          &txnMutState{mutableTrees: make(map[string]kvenv.MutableTree)},
		created:      kvenv.Now(),
		st:           stateActive,
		idempotent:   true,
		beginHook:    opts.BeginHook,
		commitHook:   opts.CommitHook,
	}
	if env.monitor.Enabled() {
		t.creatingStack = monitor.CaptureStack()
	}
	env.registerLive(t)
	return t, nil
}

// BeginTransaction starts a writable transaction (spec.md §4.1).
func (env *Environment) BeginTransaction(opts BeginOptions) (*Transaction, error) {
	return env.newTransaction(false, opts)
}

// BeginReadonlyTransaction starts a transaction that may never materialize a mutable tree.
func (env *Environment) BeginReadonlyTransaction(opts BeginOptions) (*Transaction, error) {
	return env.newTransaction(true, opts)
}

// BeginCloneMetaTransaction starts a writable transaction that shares parent's materialized
// mutable trees and queued metadata operations instead of starting from a freshly acquired
// MetaTree snapshot (spec.md §4.1's "clone-meta" flavor). It lets a caller that must pass a
// *Transaction handle into a nested call observe every write already made by parent, while the
// two still flush as a single commit unit: Flush on either one, once parent is done building up
// state through the clone, drives parent's actual commit.
func (env *Environment) BeginCloneMetaTransaction(parent *Transaction, opts BeginOptions) (*Transaction, error) {
	if err := env.checkIsOperative(); err != nil {
		return nil, err
	}
	if parent.readonly {
		return nil, kvenv.NewError(kvenv.NoTransaction, errCloneReadonlyParent{})
	}
	if parent.st != stateActive {
		return nil, kvenv.NewError(kvenv.NoTransaction, errCloneInactiveParent{})
	}
	// No meta-lock here: a clone reuses parent's snapshotMeta as-is rather than reading env.meta,
	// so there is no fresh read of shared state for the hook to observe atomically with.
	if opts.BeginHook != nil {
		opts.BeginHook()
	}

	t := &Transaction{
		env:          env,
		id:           kvenv.NewUUID(),
		readonly:     false,
		snapshotRoot: parent.snapshotRoot,
		snapshotMeta: parent.snapshotMeta,
		mut:          parent.mut,
		cloneParent:  parent,
		created:      kvenv.Now(),
		st:           stateActive,
		idempotent:   parent.idempotent,
		beginHook:    opts.BeginHook,
		commitHook:   opts.CommitHook,
	}
	if env.monitor.Enabled() {
		t.creatingStack = monitor.CaptureStack()
	}
	env.registerLive(t)
	return t, nil
}

type errCloneReadonlyParent struct{}

func (errCloneReadonlyParent) Error() string {
	return "environment: cannot clone-meta a read-only parent transaction"
}

type errCloneInactiveParent struct{}

func (errCloneInactiveParent) Error() string {
	return "environment: cannot clone-meta a parent transaction that is not active"
}
