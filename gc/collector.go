// Package gc implements the kvenv.GC external collaborator contract spec.md §6 names: a
// background reclaimer that is handed batches of expired tree-root addresses and may be suspended,
// resumed, woken, and finished, plus the utilization-profile persistence the teacher's backends use
// to avoid rescanning the whole log after a restart.
package gc

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SharedCode/kvenv"
)

const utilizationProfileStoreName = "__gc_utilization_profile"

// Collector runs a single background goroutine draining a channel of expired-loggable batches —
// spec.md §9's "flat lazy sequence" resolution, no iterator-of-iterators.
type Collector struct {
	policy  *Policy
	profile *S3Profile

	batches chan []kvenv.TreeAddress
	done    chan struct{}

	suspended atomic.Bool
	woken     chan struct{}

	mu    sync.Mutex
	usage map[string]StoreUtilization
}

// New builds a Collector. policy and profile may be nil (no CEL filter / no S3 persistence
// configured, respectively).
func New(policy *Policy, profile *S3Profile) *Collector {
	return &Collector{
		policy:  policy,
		profile: profile,
		batches: make(chan []kvenv.TreeAddress, 64),
		done:    make(chan struct{}),
		woken:   make(chan struct{}, 1),
		usage:   make(map[string]StoreUtilization),
	}
}

// Start spawns the draining goroutine. Separate from New so construction never publishes a
// running goroutine (same activation discipline as the Environment and StuckTransactionMonitor).
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.woken:
			continue
		case batch, ok := <-c.batches:
			if !ok {
				return
			}
			c.reclaim(ctx, batch)
		}
	}
}

func (c *Collector) reclaim(ctx context.Context, batch []kvenv.TreeAddress) {
	for c.suspended.Load() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	for _, addr := range batch {
		l := Loggable{Address: int64(addr)}
		eligible, err := c.policy.Eligible(l)
		if err != nil {
			slog.Error("gc policy evaluation failed", "address", addr, "error", err)
			continue
		}
		if !eligible {
			continue
		}
		// The actual byte-level relocation/compaction strategy is external per spec.md §1;
		// this records the address as reclaimed for observability.
		slog.Debug("gc reclaimed expired loggable", "address", addr)
	}
}

// Suspend pauses reclamation. A batch already being reclaimed runs to completion; the next batch
// waits until Resume.
func (c *Collector) Suspend() { c.suspended.Store(true) }

// Resume unpauses reclamation.
func (c *Collector) Resume() { c.suspended.Store(false) }

// Suspended reports whether reclamation is currently paused, for the admin introspection API.
func (c *Collector) Suspended() bool { return c.suspended.Load() }

// QueueDepth reports how many expired-loggable batches are waiting to be reclaimed.
func (c *Collector) QueueDepth() int { return len(c.batches) }

// Wake nudges the collector loop, e.g. after a burst of commits, without handing it new work.
func (c *Collector) Wake() {
	select {
	case c.woken <- struct{}{}:
	default:
	}
}

// Finish stops the background goroutine. Idempotent.
func (c *Collector) Finish() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// FetchExpiredLoggables hands addrs to the collector asynchronously (spec.md §4.2 step 6: "after
// releasing commit-lock, hand expired loggables to GC asynchronously").
func (c *Collector) FetchExpiredLoggables(ctx context.Context, addrs []kvenv.TreeAddress) {
	if len(addrs) == 0 {
		return
	}
	select {
	case c.batches <- addrs:
	case <-ctx.Done():
	}
}

// RecordUsage updates this collector's in-memory per-store utilization accounting; called by the
// Environment alongside FetchExpiredLoggables with the store names the commit touched.
func (c *Collector) RecordUsage(storeName string, liveDelta, expiredDelta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.usage[storeName]
	u.LiveBytes += liveDelta
	u.ExpiredBytes += expiredDelta
	c.usage[storeName] = u
}

// SaveUtilizationProfile persists the current usage snapshot via S3Profile, if configured. With
// no profile store configured this is a no-op success, since profile persistence is an optional
// durability aid, not a correctness requirement.
func (c *Collector) SaveUtilizationProfile(ctx context.Context) error {
	if c.profile == nil {
		return nil
	}
	c.mu.Lock()
	snapshot := UtilizationProfile{GeneratedAt: kvenv.Now().Unix(), PerStore: make(map[string]StoreUtilization, len(c.usage))}
	for k, v := range c.usage {
		snapshot.PerStore[k] = v
	}
	c.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.profile.Save(ctx, data)
}

// IsUtilizationProfile reports whether storeName names the reserved utilization-profile pseudo
// store rather than a user store.
func (c *Collector) IsUtilizationProfile(storeName string) bool {
	return storeName == utilizationProfileStoreName
}
