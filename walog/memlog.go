package walog

import (
	"context"
	"sync"

	"github.com/SharedCode/kvenv"
)

// MemLog is an in-memory kvenv.Log used by tests and by callers that don't need durability
// across process restarts. Addresses are the byte offset of each record's length-prefixed frame
// within the logical byte stream, exactly as FileLog assigns them, so tests written against
// MemLog exercise the same addressing semantics as the on-disk implementation.
type MemLog struct {
	mu     sync.Mutex
	frames [][]byte // frame i starts at the summed length of frames 0..i-1
	offset int64
}

// NewMemLog returns an empty MemLog.
func NewMemLog() *MemLog {
	return &MemLog{}
}

func (m *MemLog) HighAddress() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset
}

func (m *MemLog) Append(_ context.Context, records [][]byte) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]int64, len(records))
	for i, r := range records {
		addrs[i] = m.offset
		frame := frameRecord(r)
		m.frames = append(m.frames, frame)
		m.offset += int64(len(frame))
	}
	return addrs, nil
}

func (m *MemLog) Get(_ context.Context, address int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(0)
	for _, f := range m.frames {
		if off == address {
			return unframe(f)
		}
		off += int64(len(f))
	}
	return nil, kvenv.NewError(kvenv.Unknown, errRecordNotFound{address: address})
}

func (m *MemLog) SetHighAddress(_ context.Context, address int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off := int64(0)
	kept := m.frames[:0:0]
	for _, f := range m.frames {
		if off >= address {
			break
		}
		kept = append(kept, f)
		off += int64(len(f))
	}
	m.frames = kept
	m.offset = off
	return nil
}

func (m *MemLog) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
	m.offset = 0
	return nil
}

func (m *MemLog) Close() error { return nil }

func (m *MemLog) CacheHitRate() float64 { return -1 }

type errRecordNotFound struct{ address int64 }

func (e errRecordNotFound) Error() string {
	return "walog: no record at the given address"
}
