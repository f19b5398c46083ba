package environment

import (
	"fmt"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/metatree"
)

// errTransactionFailed wraps the underlying cause of a commit-stage failure, surfaced as
// kvenv.TransactionFailed (spec.md §4.2 step 4 / §7).
type errTransactionFailed struct{ cause error }

func (e errTransactionFailed) Error() string { return fmt.Sprintf("transaction failed: %v", e.cause) }
func (e errTransactionFailed) Unwrap() error { return e.cause }

// usageDelta is one store's live/expired generation-count change from a single commit, reported
// to the GC's utilization accounting (RecordUsage) alongside the expired-addresses handoff. Units
// are generations, not bytes: the byte-level log format is out of scope (spec.md §1), so this is
// the accounting granularity available at the Environment layer.
type usageDelta struct {
	storeName               string
	liveDelta, expiredDelta int64
}

// commit implements spec.md §4.2's writer commit protocol, steps 1-7.
func (env *Environment) commit(t *Transaction, forceCommit bool) (bool, error) {
	if err := env.checkIsOperative(); err != nil {
		return false, err
	}

	env.commitMu.Lock()

	if err := env.checkIsOperative(); err != nil {
		env.commitMu.Unlock()
		return false, err
	}

	// Step 2: verify the transaction's snapshot is still current.
	env.metaMu.RLock()
	current := env.meta
	env.metaMu.RUnlock()
	if t.snapshotRoot != current.Root() {
		env.commitMu.Unlock()
		return false, nil
	}

	// Step 3: snapshot the log's high-water mark for rollback.
	highBefore := env.log.HighAddress()

	newMeta, expiredData, expiredMeta, usage, err := env.doCommit(t)
	if err != nil {
		// Step 4: any failure triggers rollback.
		if rbErr := env.log.SetHighAddress(env.ctx, highBefore); rbErr != nil {
			env.setInoperative(rbErr)
			env.commitMu.Unlock()
			return false, kvenv.NewError(kvenv.Inoperative, rbErr)
		}
		env.commitMu.Unlock()
		return false, kvenv.NewError(kvenv.TransactionFailed, errTransactionFailed{cause: err})
	}

	// Step 5: publish the new MetaTree and run the commit hook, both under the meta-lock.
	env.metaMu.Lock()
	env.meta = newMeta
	if t.commitHook != nil {
		t.commitHook()
	}
	env.metaMu.Unlock()

	env.commitMu.Unlock()

	// Step 6: hand expired loggables to GC asynchronously, now that commit-lock is released.
	expired := append(append([]kvenv.TreeAddress{}, expiredData...), expiredMeta...)
	go env.gcol.FetchExpiredLoggables(env.ctx, expired)
	for _, u := range usage {
		env.gcol.RecordUsage(u.storeName, u.liveDelta, u.expiredDelta)
	}

	// Step 7: remove from the transaction set and sweep deferred tasks.
	t.st = stateFlushed
	env.unregisterLive(t.id)
	env.deferred.Drain(env.ctx)

	return true, nil
}

// doCommit appends every mutated store's tree, then the MetaTree's own updates, returning the new
// MetaTree generation, the addresses both layers superseded, and the per-store usage deltas for
// the GC's utilization accounting. It never mutates env state: a failure here must leave the
// environment's published MetaTree and live registries untouched so the rollback path in commit
// can safely retry or fail without side effects.
func (env *Environment) doCommit(t *Transaction) (newMeta *metatree.MetaTree, expiredData, expiredMeta []kvenv.TreeAddress, usage []usageDelta, err error) {
	metaMutable := env.metaStore.Mutate(t.snapshotMeta)

	for storeName, mt := range t.mut.mutableTrees {
		info, existed := t.snapshotMeta.GetMetaInfo(storeName)
		if !existed {
			// The store was created in this transaction via OpenStore/truncateStore; its
			// TreeMetaInfo was already queued in t.mut.metaOps, not yet visible via GetMetaInfo.
			info = t.pendingInfo(storeName)
		}
		newRoot, exp, cErr := env.treeStore.Commit(env.ctx, mt)
		if cErr != nil {
			return nil, nil, nil, nil, cErr
		}
		expiredData = append(expiredData, exp...)
		usage = append(usage, usageDelta{storeName: storeName, liveDelta: 1, expiredDelta: int64(len(exp))})
		info.DataRoot = newRoot
		metaMutable.Put(metatree.NameKey(storeName), metatree.EncodeMetaInfo(info))
	}

	for _, op := range t.mut.metaOps {
		_, hasTree := t.mut.mutableTrees[op.storeName]
		if hasTree {
			// The old tree this op would otherwise supersede was already committed above via
			// treeStore.Commit, which folds its prior root into expiredData and usage itself.
		} else if op.oldDataRoot != kvenv.NoAddress {
			expiredData = append(expiredData, op.oldDataRoot)
			usage = append(usage, usageDelta{storeName: op.storeName, expiredDelta: 1})
		}
		if op.remove {
			metaMutable.Delete(metatree.NameKey(op.storeName))
			continue
		}
		if hasTree {
			continue // already applied above with its real post-commit DataRoot
		}
		metaMutable.Put(metatree.NameKey(op.storeName), metatree.EncodeMetaInfo(op.info))
	}

	newMeta, expiredMeta, err = env.metaStore.Commit(env.ctx, metaMutable)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return newMeta, expiredData, expiredMeta, usage, nil
}

// pendingInfo returns the TreeMetaInfo queued for storeName in t.mut.metaOps, used when a store was
// created fresh in this transaction (so it isn't yet visible in the snapshot MetaTree).
func (t *Transaction) pendingInfo(storeName string) metatree.TreeMetaInfo {
	for _, op := range t.mut.metaOps {
		if op.storeName == storeName && !op.remove {
			return op.info
		}
	}
	return metatree.TreeMetaInfo{DataRoot: kvenv.NoAddress}
}
