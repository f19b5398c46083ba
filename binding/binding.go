// Package binding implements the String <-> byte-iterable bindings the Environment hands out
// to callers (spec.md §6): strings are UTF-8 encoded with a terminating zero byte, and readers
// may optionally intern decoded strings for deduplication.
//
// The interning strategy is always an explicit constructor argument (an Interner value threaded
// into whatever decodes names), never a hidden process-wide switch — see spec.md §9 design note 1.
package binding

import (
	"sync"

	"github.com/SharedCode/kvenv"
)

// Encode returns s as UTF-8 bytes with a trailing zero byte, so a name key in the meta-tree can
// never collide with a big-endian-encoded structure id (spec.md §3, §8 invariant 4).
func Encode(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return b
}

// Decode reverses Encode. It returns an error if b does not end in a zero byte.
func Decode(b []byte) (string, error) {
	if len(b) == 0 || b[len(b)-1] != 0 {
		return "", kvenv.NewError(kvenv.Unknown, errNotZeroTerminated)
	}
	return string(b[:len(b)-1]), nil
}

var errNotZeroTerminated = errZeroTerm{}

type errZeroTerm struct{}

func (errZeroTerm) Error() string { return "binding: byte-iterable is not zero-terminated" }

// Interner deduplicates decoded strings. Decode callers that want interning pass a non-nil
// Interner to DecodeInterned.
type Interner interface {
	Intern(s string) string
}

// NewInterner builds an Interner implementing the given strategy (spec.md §6's
// bindings.interner: java|xodus|unset). cacheSize only applies to InternerXodus.
func NewInterner(strategy kvenv.InternerStrategy, cacheSize int) Interner {
	switch strategy {
	case kvenv.InternerJava:
		return newUnboundedInterner()
	case kvenv.InternerXodus:
		return newMRUInterner(cacheSize)
	default:
		return noopInterner{}
	}
}

// DecodeInterned is Decode followed by an optional Interner.Intern pass.
func DecodeInterned(b []byte, interner Interner) (string, error) {
	s, err := Decode(b)
	if err != nil {
		return "", err
	}
	if interner != nil {
		s = interner.Intern(s)
	}
	return s, nil
}

type noopInterner struct{}

func (noopInterner) Intern(s string) string { return s }

// unboundedInterner mimics a simple map-based intern table with no eviction, the "java" strategy.
type unboundedInterner struct {
	mu    sync.Mutex
	table map[string]string
}

func newUnboundedInterner() *unboundedInterner {
	return &unboundedInterner{table: make(map[string]string)}
}

func (u *unboundedInterner) Intern(s string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.table[s]; ok {
		return existing
	}
	u.table[s] = s
	return s
}

// mruInterner is the "xodus" strategy: bounded by a most-recently-used eviction list so the
// intern table doesn't grow without bound under a long-lived Environment.
type mruInterner struct {
	mu       sync.Mutex
	maxSize  int
	table    map[string]*node[string]
	order    *doublyLinkedList[string]
}

func newMRUInterner(maxSize int) *mruInterner {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &mruInterner{
		maxSize: maxSize,
		table:   make(map[string]*node[string]),
		order:   newDoublyLinkedList[string](),
	}
}

func (m *mruInterner) Intern(s string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.table[s]; ok {
		m.order.moveToHead(n)
		return n.data
	}

	n := m.order.addToHead(s)
	m.table[s] = n
	for m.order.count() > m.maxSize {
		evicted, ok := m.order.deleteFromTail()
		if !ok {
			break
		}
		delete(m.table, evicted)
	}
	return s
}
