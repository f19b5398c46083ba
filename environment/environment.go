// Package environment is the Environment core spec.md describes: the orchestrator tying together
// the append-only Log, the MetaTree, the set of live transactions, and the background GC. It
// implements the commit/rollback protocol, the inoperative latch, and open/truncate/remove/close/
// clear, re-architected per spec.md §9's design notes (no this-escape during construction, no
// pokémon-catch commit handling, and the GC holds no back-reference to the environment).
package environment

import (
	"context"
	"sync"
	"time"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/binding"
	"github.com/SharedCode/kvenv/deferredtask"
	"github.com/SharedCode/kvenv/metatree"
	"github.com/SharedCode/kvenv/monitor"
	"github.com/SharedCode/kvenv/txnset"
)

// Environment is the coordinator described in spec.md §3.
type Environment struct {
	ctx context.Context

	log       kvenv.Log
	treeStore kvenv.TreeStore
	metaStore *metatree.Store
	gcol      kvenv.GC
	cfg       kvenv.EnvironmentConfig
	interner  binding.Interner

	txns     *txnset.Set
	deferred *deferredtask.Queue
	monitor  *monitor.Monitor

	commitMu sync.Mutex // commit-lock: serializes writer commits and clear/close

	metaMu       sync.RWMutex // meta-lock: protects meta below
	meta         *metatree.MetaTree
	structureCtr int64

	// live mirrors txns with enough detail (creation time, stack) for the StuckTransactionMonitor
	// to scan; txnset.Set itself only guarantees ordered oldest/newest queries, not iteration.
	liveMu sync.RWMutex
	live   map[kvenv.UUID]*Transaction

	// storesMu/storesSeen back the admin introspection surface's store listing (SPEC_FULL.md
	// §10). The MetaTree has no range scan (spec.md §1 excludes it), so this records every store
	// name OpenStore has resolved during this process's lifetime rather than a full catalog.
	// Keyed by the store's encoded byte-iterable (binding.Encode(name)), not the plain string, so
	// KnownStores decodes it back through env.interner like any other name binding leaving the
	// core (spec.md §6/§9 design note 1).
	storesMu   sync.RWMutex
	storesSeen map[string]metatree.TreeMetaInfo

	stateMu          sync.Mutex
	inoperativeCause error
	closedCause      error
}

// StoreSummary is a read-only view of a store's registration, for the admin introspection API.
type StoreSummary struct {
	Name          string
	StructureId   int64
	HasDuplicates bool
	KeyPrefixing  bool
}

// noteStore records name/info as seen, for KnownStores. Called by OpenStore/TruncateStore. The
// map key is the store name's encoded byte-iterable, matching how every other name binding is
// keyed in the MetaTree itself (spec.md §4.3/§8).
func (env *Environment) noteStore(name string, info metatree.TreeMetaInfo) {
	env.storesMu.Lock()
	env.storesSeen[string(binding.Encode(name))] = info
	env.storesMu.Unlock()
}

func (env *Environment) forgetStore(name string) {
	env.storesMu.Lock()
	delete(env.storesSeen, string(binding.Encode(name)))
	env.storesMu.Unlock()
}

// KnownStores lists every store name this Environment has resolved via OpenStore so far
// (SPEC_FULL.md §10). It is not a full catalog scan: a store never opened in this process's
// lifetime is absent even if it exists on disk. Names are decoded back from their stored
// byte-iterable through env.interner, the same binding surface every other reader uses
// (spec.md §6's bindings.interner, §9 design note 1).
func (env *Environment) KnownStores() []StoreSummary {
	env.storesMu.RLock()
	defer env.storesMu.RUnlock()
	out := make([]StoreSummary, 0, len(env.storesSeen))
	for key, info := range env.storesSeen {
		name, err := binding.DecodeInterned([]byte(key), env.interner)
		if err != nil {
			continue
		}
		out = append(out, StoreSummary{
			Name:          name,
			StructureId:   info.StructureId,
			HasDuplicates: info.HasDuplicates,
			KeyPrefixing:  info.KeyPrefixing,
		})
	}
	return out
}

// LiveTransactionSnapshot returns the current live transactions' monitor view, for the admin
// introspection API (SPEC_FULL.md §10).
func (env *Environment) LiveTransactionSnapshot() []monitor.Transaction {
	return env.liveTransactions()
}

// LiveTransactionCount reports how many transactions are currently open.
func (env *Environment) LiveTransactionCount() int {
	return env.txns.Len()
}

// DeferredQueueDepth reports how many deferred tasks are waiting on the oldest-live-root gate.
func (env *Environment) DeferredQueueDepth() int {
	return env.deferred.Len()
}

// Open builds an Environment fully (no background goroutines yet — call Activate to publish the
// StuckTransactionMonitor, per spec.md §9's this-escape design note) over log/treeStore/gcol using
// cfg.
func Open(ctx context.Context, log kvenv.Log, treeStore kvenv.TreeStore, gcol kvenv.GC, cfg kvenv.EnvironmentConfig) (*Environment, error) {
	metaStore := metatree.NewStore(log, treeStore)
	meta, err := metaStore.Load(ctx)
	if err != nil {
		return nil, err
	}

	env := &Environment{
		ctx:        ctx,
		log:        log,
		treeStore:  treeStore,
		metaStore:  metaStore,
		gcol:       gcol,
		cfg:        cfg,
		interner:   binding.NewInterner(cfg.Interner, cfg.InternerCacheSize),
		txns:       txnset.New(),
		meta:       meta,
		live:       make(map[kvenv.UUID]*Transaction),
		storesSeen: make(map[string]metatree.TreeMetaInfo),
	}
	env.deferred = deferredtask.New(env.oldestLiveRoot)
	env.monitor = monitor.New(cfg.MonitorTxnsTimeout, env.liveTransactions)
	return env, nil
}

// Activate starts background goroutines (the StuckTransactionMonitor, if enabled). Call once
// after Open.
func (env *Environment) Activate() {
	if env.monitor.Enabled() {
		env.monitor.Start(env.ctx, 1*time.Second)
	}
}

func (env *Environment) oldestLiveRoot() (int64, bool) {
	return env.txns.OldestRoot()
}

func (env *Environment) liveTransactions() []monitor.Transaction {
	env.liveMu.RLock()
	defer env.liveMu.RUnlock()
	out := make([]monitor.Transaction, 0, len(env.live))
	for _, t := range env.live {
		out = append(out, t.monitorSnapshot())
	}
	return out
}

func (env *Environment) checkIsOperative() error {
	env.stateMu.Lock()
	defer env.stateMu.Unlock()
	if env.closedCause != nil {
		return kvenv.NewError(kvenv.EnvironmentClosed, env.closedCause)
	}
	if env.inoperativeCause != nil {
		return kvenv.NewError(kvenv.Inoperative, env.inoperativeCause)
	}
	return nil
}

func (env *Environment) setInoperative(cause error) {
	env.stateMu.Lock()
	defer env.stateMu.Unlock()
	if env.inoperativeCause == nil {
		env.inoperativeCause = cause
	}
}

func (env *Environment) currentMeta() (*metatree.MetaTree, error) {
	if err := env.checkIsOperative(); err != nil {
		return nil, err
	}
	env.metaMu.RLock()
	defer env.metaMu.RUnlock()
	return env.meta, nil
}

func (env *Environment) registerLive(t *Transaction) {
	env.liveMu.Lock()
	env.live[t.id] = t
	env.liveMu.Unlock()
	env.txns.Insert(t)
}

func (env *Environment) unregisterLive(id kvenv.UUID) {
	env.liveMu.Lock()
	delete(env.live, id)
	env.liveMu.Unlock()
	env.txns.Remove(id)
}
