// Package metatree is the MetaTree spec.md §3/§4.3 names: an immutable (root-address, tree) pair
// mapping store name to TreeMetaInfo, replaced atomically on each successful write commit.
package metatree

import (
	"context"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/binding"
)

// TreeMetaInfo is a store's complete, self-describing metadata: spec.md's structureId/
// hasDuplicates/keyPrefixing plus the teacher-style descriptor fields (SlotLength, Description,
// CacheConfig) that make a store registration a real unit rather than a bare pair of booleans.
type TreeMetaInfo struct {
	StructureId   int64
	HasDuplicates bool
	KeyPrefixing  bool

	// DataRoot is the store's own data tree's current root address, as distinct from the
	// MetaTree's own root: each store is itself a kvenv.Tree, and the MetaTree only remembers
	// where its latest generation lives.
	DataRoot kvenv.TreeAddress

	SlotLength  int
	Description string

	// CacheConfig, when non-empty, names the cache tier a store's tree pages should use; it is
	// advisory metadata only (tree package doesn't page-cache in this implementation).
	CacheConfig string
}

// lowByteNonzero reports whether id satisfies spec.md §3/§8 invariant 4: id > 0 and its low byte
// is never zero, so a big-endian structure-id key can never collide with a zero-terminated name
// key in the MetaTree.
func lowByteNonzero(id int64) bool {
	return id > 0 && id&0xff != 0
}

// MetaTree is the immutable snapshot transactions pin for their lifetime: a root address plus the
// kvenv.Tree opened at it.
type MetaTree struct {
	root kvenv.TreeAddress
	tree kvenv.Tree
}

func (mt *MetaTree) Root() kvenv.TreeAddress { return mt.root }

// GetMetaInfo looks up name (UTF-8, zero-terminated per spec.md §4.3/§8) and decodes its
// TreeMetaInfo, or ok=false if the store isn't registered.
func (mt *MetaTree) GetMetaInfo(name string) (TreeMetaInfo, bool) {
	raw, ok := mt.tree.Get(binding.Encode(name))
	if !ok {
		return TreeMetaInfo{}, false
	}
	info, err := decodeMetaInfo(raw)
	if err != nil {
		return TreeMetaInfo{}, false
	}
	return info, true
}

// Store loads and opens the MetaTree rooted wherever the log's tail records it, and mints new
// MetaTree generations on commit.
type Store struct {
	log       kvenv.Log
	treeStore kvenv.TreeStore
}

// NewStore builds a Store over log using treeStore for the underlying tree commits.
func NewStore(log kvenv.Log, treeStore kvenv.TreeStore) *Store {
	return &Store{log: log, treeStore: treeStore}
}

// Every successful Store.Commit appends exactly one fixed-size (8-byte payload, 16-byte framed)
// root marker record as the very last thing it writes, after the MetaTree's own tree blob. Since
// this package is the only writer that ever appends to the log's tail, the log's last frame is
// therefore always a marker whose frame starts 16 bytes before the current high address — Load
// uses that fact directly instead of performing a general byte-level tail scan (which is out of
// scope per spec.md §1 anyway: this package never needs to parse an arbitrary record's framing).
func encodeRootMarker(root kvenv.TreeAddress) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(root)
		root >>= 8
	}
	return b
}

func decodeRootMarker(b []byte) kvenv.TreeAddress {
	var root int64
	for _, c := range b {
		root = root<<8 | int64(c)
	}
	return root
}

// Load reads the meta-root marker record that ends the log (the frame starting 16 bytes before the
// high address) and opens the MetaTree at the root it names. An empty log yields a fresh, empty
// MetaTree (spec.md §4.3).
func (s *Store) Load(ctx context.Context) (*MetaTree, error) {
	high := s.log.HighAddress()
	if high == 0 {
		// A brand-new MetaTree is not written to the log until its first publish; it starts as
		// an in-memory empty tree rooted at kvenv.NoAddress (spec.md §4.3).
		return &MetaTree{root: kvenv.NoAddress, tree: s.treeStore.Empty()}, nil
	}

	const markerFrameSize = 16 // 8-byte length header + 8-byte payload
	markerAddr := high - markerFrameSize
	raw, err := s.log.Get(ctx, markerAddr)
	if err != nil || len(raw) != 8 {
		return nil, kvenv.NewError(kvenv.Unknown, errNoMetaRootMarker{})
	}
	root := decodeRootMarker(raw)
	snap, found, err := s.treeStore.Open(ctx, root)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, kvenv.NewError(kvenv.Unknown, errNoMetaRootMarker{})
	}
	return &MetaTree{root: root, tree: snap}, nil
}

type errNoMetaRootMarker struct{}

func (errNoMetaRootMarker) Error() string {
	return "metatree: log tail does not end in a meta-root marker"
}

// Commit persists meta (the mutated MetaTree's underlying tree) through treeStore, then appends a
// root marker record so the next Load can find it, and returns the new MetaTree generation plus
// any tree addresses the commit superseded.
func (s *Store) Commit(ctx context.Context, m kvenv.MutableTree) (*MetaTree, []kvenv.TreeAddress, error) {
	root, expired, err := s.treeStore.Commit(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.log.Append(ctx, [][]byte{encodeRootMarker(root)}); err != nil {
		return nil, nil, err
	}
	snap, _, err := s.treeStore.Open(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	return &MetaTree{root: root, tree: snap}, expired, nil
}

// Mutate returns a mutable copy of mt's tree for registering/removing store entries.
func (s *Store) Mutate(mt *MetaTree) kvenv.MutableTree {
	return s.treeStore.Mutate(mt.tree)
}

func encodeMetaInfo(info TreeMetaInfo) []byte {
	// A small fixed-width-ish encoding kept intentionally simple: the MetaTree's value bytes are
	// opaque to the Tree/Log layers, so any serialization that round-trips is sufficient.
	b := make([]byte, 0, 40+len(info.Description)+len(info.CacheConfig))
	b = appendInt64(b, info.StructureId)
	b = append(b, boolByte(info.HasDuplicates), boolByte(info.KeyPrefixing))
	b = appendInt64(b, int64(info.DataRoot))
	b = appendInt64(b, int64(info.SlotLength))
	b = appendString(b, info.Description)
	b = appendString(b, info.CacheConfig)
	return b
}

func decodeMetaInfo(b []byte) (TreeMetaInfo, error) {
	var info TreeMetaInfo
	var ok bool
	info.StructureId, b, ok = readInt64(b)
	if !ok {
		return info, errCorruptMetaInfo{}
	}
	if len(b) < 2 {
		return info, errCorruptMetaInfo{}
	}
	info.HasDuplicates, info.KeyPrefixing = b[0] != 0, b[1] != 0
	b = b[2:]
	var dataRoot int64
	dataRoot, b, ok = readInt64(b)
	if !ok {
		return info, errCorruptMetaInfo{}
	}
	info.DataRoot = kvenv.TreeAddress(dataRoot)
	var slotLen int64
	slotLen, b, ok = readInt64(b)
	if !ok {
		return info, errCorruptMetaInfo{}
	}
	info.SlotLength = int(slotLen)
	info.Description, b, ok = readString(b)
	if !ok {
		return info, errCorruptMetaInfo{}
	}
	info.CacheConfig, _, ok = readString(b)
	if !ok {
		return info, errCorruptMetaInfo{}
	}
	return info, nil
}

type errCorruptMetaInfo struct{}

func (errCorruptMetaInfo) Error() string { return "metatree: corrupt TreeMetaInfo encoding" }

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendInt64(b []byte, v int64) []byte {
	for i := 7; i >= 0; i-- {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func readInt64(b []byte) (int64, []byte, bool) {
	if len(b) < 8 {
		return 0, b, false
	}
	var v int64
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(b[i])
	}
	return v, b[8:], true
}

func appendString(b []byte, s string) []byte {
	b = appendInt64(b, int64(len(s)))
	return append(b, s...)
}

func readString(b []byte) (string, []byte, bool) {
	n, rest, ok := readInt64(b)
	if !ok || int64(len(rest)) < n {
		return "", b, false
	}
	return string(rest[:n]), rest[n:], true
}

// NewStructureId allocates the next structure id from counter, skipping any value whose low byte
// is zero (spec.md §3/§4.1/§8 invariant 4).
func NewStructureId(counter *int64) int64 {
	*counter++
	if !lowByteNonzero(*counter) {
		*counter++
	}
	return *counter
}

// EncodeMetaInfo and DecodeMetaInfo are exported so Environment can build the mutable tree entries
// it registers/removes without metatree needing to expose its private wire format struct fields.
func EncodeMetaInfo(info TreeMetaInfo) []byte       { return encodeMetaInfo(info) }
func DecodeMetaInfo(b []byte) (TreeMetaInfo, error) { return decodeMetaInfo(b) }

// NameKey returns the zero-terminated MetaTree key for a store name.
func NameKey(name string) []byte { return binding.Encode(name) }
