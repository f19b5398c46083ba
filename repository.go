package kvenv

import "context"

// Log is the append-only log contract the Environment core depends on (spec.md §6). highAddress
// is monotonically non-decreasing across successful commits; setHighAddress truncates the log
// and is used exclusively for post-failure rollback. Get reads back a previously appended
// record by the address Append returned for it — the byte-level log format and page cache are
// out of scope (spec.md §1); this is the minimal read surface a Tree implementation needs to
// reload a snapshot.
type Log interface {
	// HighAddress returns the log's current high-water mark: one past the last durable byte.
	HighAddress() int64
	// Append writes records and returns each one's address. Durability happens before return.
	Append(ctx context.Context, records [][]byte) ([]int64, error)
	// Get reads back a previously appended record by address.
	Get(ctx context.Context, address int64) ([]byte, error)
	// SetHighAddress truncates the log to address. Used exclusively for post-failure rollback.
	SetHighAddress(ctx context.Context, address int64) error
	// Clear discards all records and resets the high-water mark to zero.
	Clear(ctx context.Context) error
	// Close releases the log's resources. One-way.
	Close() error
	// CacheHitRate reports the read-through cache's hit ratio in [0,1], or -1 if uncached.
	CacheHitRate() float64
}

// TreeAddress is the log address of a tree's root, or NoAddress for "does not exist".
type TreeAddress = int64

// NoAddress marks the absence of a tree root (spec.md §4.3: negative addresses are absent).
const NoAddress TreeAddress = -1

// Tree is an immutable snapshot of a persistent ordered byte-string map, opened at a root
// address (spec.md §6). Reading never blocks a concurrent writer.
type Tree interface {
	// Get fetches the value for key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool)
	// Root returns the log address this snapshot was opened at.
	Root() TreeAddress
}

// MutableTree is a copy-on-write mutable view over a Tree, tracking changes until Commit.
type MutableTree interface {
	Tree
	Put(key, value []byte)
	Delete(key []byte)
}

// TreeStore knows how to open snapshots, create mutable copies, and commit them (spec.md §6).
// Commit yields the new root address and the addresses of records the commit superseded or
// deleted — the "expired loggables" the GC will reclaim (spec.md §9: modeled as a flat slice,
// not an iterator-of-iterators, since restartable iteration is not required).
type TreeStore interface {
	// Open returns the snapshot rooted at addr, or found=false if addr is negative or beyond the
	// log's high-water mark (spec.md §4.3).
	Open(ctx context.Context, addr TreeAddress) (snap Tree, found bool, err error)
	// Empty returns a brand-new empty mutable tree with no backing root yet.
	Empty() MutableTree
	// Mutate returns a copy-on-write mutable copy of snap for writing.
	Mutate(snap Tree) MutableTree
	// Commit persists m's changes and returns the new root plus expired record addresses.
	Commit(ctx context.Context, m MutableTree) (newRoot TreeAddress, expired []TreeAddress, err error)
}

// GC is the garbage collector contract the Environment core depends on (spec.md §6). The
// Environment never calls back through a stored reference cycle; every GC callback that needs
// environment state receives it as an explicit parameter (spec.md §9 design note 2).
type GC interface {
	// Suspend pauses background reclamation, e.g. during Clear.
	Suspend()
	// Resume resumes background reclamation after Suspend.
	Resume()
	// Wake nudges the collector to run a sweep pass soon, without waiting for its normal period.
	Wake()
	// Finish stops the collector for good. Called outside any lock to avoid deadlock (spec.md §4.1).
	Finish()
	// FetchExpiredLoggables hands the collector a batch of record addresses superseded or
	// deleted by a commit, for eventual reclamation.
	FetchExpiredLoggables(ctx context.Context, addrs []TreeAddress)
	// RecordUsage updates a store's live/expired generation accounting, called once per mutated
	// or removed store alongside FetchExpiredLoggables so SaveUtilizationProfile reflects real
	// commit activity instead of an always-empty profile.
	RecordUsage(storeName string, liveDelta, expiredDelta int64)
	// SaveUtilizationProfile persists the collector's current space-utilization profile.
	SaveUtilizationProfile(ctx context.Context) error
	// IsUtilizationProfile reports whether storeName names a utilization-profile store rather
	// than a user store, so callers can filter it out of store listings.
	IsUtilizationProfile(storeName string) bool
}
