package environment

import (
	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/metatree"
)

// OpenStore implements spec.md §4.1's openStore(name, config, txn, creationRequired). With
// creationRequired=false, a missing store returns (nil, false, nil) rather than being created.
func (env *Environment) OpenStore(t *Transaction, name string, cfg kvenv.StoreConfig, creationRequired bool) (*Store, bool, error) {
	info, existed := t.snapshotMeta.GetMetaInfo(name)
	if !existed {
		if pendingInfo, pendingOK := t.pendingOpenInfo(name); pendingOK {
			info, existed = pendingInfo, true
		}
	}

	if !existed {
		if !creationRequired {
			return nil, false, nil
		}
		if cfg.UseExisting {
			return nil, false, kvenv.NewError(kvenv.NoSuchStore, errNoSuchStore{name: name})
		}
		if t.readonly {
			return nil, false, kvenv.NewError(kvenv.NoTransaction, errNoTransactionForCreate{name: name})
		}
		newInfo := metatree.TreeMetaInfo{
			StructureId:   metatree.NewStructureId(&env.structureCtr),
			HasDuplicates: cfg.HasDuplicates,
			KeyPrefixing:  cfg.KeyPrefixing,
			DataRoot:      kvenv.NoAddress,
		}
		t.mut.metaOps = append(t.mut.metaOps, metaOp{storeName: name, info: newInfo})
		t.markDirty()
		env.noteStore(name, newInfo)
		return &Store{name: name, info: newInfo, txn: t}, true, nil
	}

	if info.HasDuplicates != cfg.HasDuplicates {
		return nil, false, kvenv.NewError(kvenv.ConfigMismatch, errConfigMismatch{name: name, field: "hasDuplicates"})
	}
	if cfg.KeyPrefixing && !info.KeyPrefixing {
		return nil, false, kvenv.NewError(kvenv.ConfigMismatch, errConfigMismatch{name: name, field: "keyPrefixing"})
	}
	// A prefixing=false request against a prefixing-enabled existing store silently opens the
	// existing (prefixing) metadata. Preserved verbatim per spec.md §9's open question — not
	// resolved either way, flagged in DESIGN.md.
	env.noteStore(name, info)
	return &Store{name: name, info: info, txn: t}, true, nil
}

func (t *Transaction) pendingOpenInfo(name string) (metatree.TreeMetaInfo, bool) {
	for _, op := range t.mut.metaOps {
		if op.storeName == name && !op.remove {
			return op.info, true
		}
	}
	return metatree.TreeMetaInfo{}, false
}

// TruncateStore locates the store, records removal of its old tree (the old bytes become GC
// candidates once the commit that supersedes them lands), and registers a fresh empty store under
// the same name in the same transaction (spec.md §4.1).
func (env *Environment) TruncateStore(t *Transaction, name string) error {
	info, existed := t.snapshotMeta.GetMetaInfo(name)
	if !existed {
		return kvenv.NewError(kvenv.NoSuchStore, errNoSuchStore{name: name})
	}
	delete(t.mut.mutableTrees, name)
	newInfo := metatree.TreeMetaInfo{
		StructureId:   metatree.NewStructureId(&env.structureCtr),
		HasDuplicates: info.HasDuplicates,
		KeyPrefixing:  info.KeyPrefixing,
		DataRoot:      kvenv.NoAddress,
	}
	// info.DataRoot (the tree being replaced) becomes a GC candidate once this commit lands
	// (spec.md §4.1); doCommit folds oldDataRoot into the commit's expired-addresses batch.
	t.mut.metaOps = append(t.mut.metaOps, metaOp{storeName: name, info: newInfo, oldDataRoot: info.DataRoot})
	t.markDirty()
	env.noteStore(name, newInfo)
	return nil
}

// RemoveStore records removal of the existing tree without re-registering it.
func (env *Environment) RemoveStore(t *Transaction, name string) error {
	info, existed := t.snapshotMeta.GetMetaInfo(name)
	if !existed {
		return kvenv.NewError(kvenv.NoSuchStore, errNoSuchStore{name: name})
	}
	delete(t.mut.mutableTrees, name)
	// info.DataRoot becomes a GC candidate once this commit lands (spec.md §4.1); doCommit folds
	// oldDataRoot into the commit's expired-addresses batch.
	t.mut.metaOps = append(t.mut.metaOps, metaOp{storeName: name, remove: true, oldDataRoot: info.DataRoot})
	t.markDirty()
	env.forgetStore(name)
	return nil
}

type errNoSuchStore struct{ name string }

func (e errNoSuchStore) Error() string { return "environment: no such store: " + e.name }

type errNoTransactionForCreate struct{ name string }

func (e errNoTransactionForCreate) Error() string {
	return "environment: cannot create store " + e.name + " from a read-only transaction"
}

type errConfigMismatch struct{ name, field string }

func (e errConfigMismatch) Error() string {
	return "environment: store " + e.name + " exists with incompatible " + e.field
}
