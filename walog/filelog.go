package walog

import (
	"context"
	"encoding/binary"
	"os"
	"sync"

	"github.com/SharedCode/kvenv"
)

// FileLogConfig configures a single-host append-only log segment file.
type FileLogConfig struct {
	// Path is the log file's path. It is created if missing.
	Path string
	// UseErasure enables a reedsolomon/directio-backed parity shard file alongside Path,
	// so a lost or corrupted block of the primary log can be reconstructed (see erasure.go).
	UseErasure bool
	// ErasureDataShards / ErasureParityShards size the reedsolomon encoder when UseErasure is set.
	ErasureDataShards   int
	ErasureParityShards int
}

// FileLog is a kvenv.Log backed by a single growing file: each record is framed with an 8-byte
// big-endian length prefix; a record's address is the file offset of its frame header. This is
// the default single-host implementation of the Log contract spec.md §6 names (grounded on the
// teacher's fs/file_io.go retry-on-write-failure pattern, minus the B-tree page-cache concerns
// that spec.md §1 keeps explicitly out of scope).
type FileLog struct {
	mu          sync.Mutex
	f           *os.File
	highAddress int64
	erasure     *erasureWriter
}

// OpenFileLog opens (creating if necessary) the log file at cfg.Path.
func OpenFileLog(cfg FileLogConfig) (*FileLog, error) {
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}

	fl := &FileLog{f: f, highAddress: stat.Size()}
	if cfg.UseErasure {
		ew, err := newErasureWriter(cfg.Path+".parity", cfg.ErasureDataShards, cfg.ErasureParityShards)
		if err != nil {
			f.Close()
			return nil, err
		}
		fl.erasure = ew
	}
	return fl, nil
}

func (l *FileLog) HighAddress() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.highAddress
}

// Append writes each record's framed form at the current high-water mark and fsyncs before
// returning, so a returned address is durable (spec.md §6: "writes persist before return").
func (l *FileLog) Append(_ context.Context, records [][]byte) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	addrs := make([]int64, len(records))
	for i, r := range records {
		addr := l.highAddress
		frame := frameRecord(r)
		if _, err := l.f.WriteAt(frame, addr); err != nil {
			return nil, kvenv.NewError(kvenv.FileIOError, err)
		}
		l.highAddress += int64(len(frame))
		addrs[i] = addr
		if l.erasure != nil {
			if err := l.erasure.Observe(frame); err != nil {
				return nil, kvenv.NewError(kvenv.FileIOError, err)
			}
		}
	}
	if err := l.f.Sync(); err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	return addrs, nil
}

func (l *FileLog) Get(_ context.Context, address int64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := make([]byte, frameHeaderSize)
	if _, err := l.f.ReadAt(header, address); err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	n := binary.BigEndian.Uint64(header)
	payload := make([]byte, n)
	if n > 0 {
		if _, err := l.f.ReadAt(payload, address+frameHeaderSize); err != nil {
			return nil, kvenv.NewError(kvenv.FileIOError, err)
		}
	}
	return payload, nil
}

// SetHighAddress truncates the log to address. Used exclusively for post-commit-failure
// rollback (spec.md §4.2 step 4).
func (l *FileLog) SetHighAddress(_ context.Context, address int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Truncate(address); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}
	l.highAddress = address
	return nil
}

func (l *FileLog) Clear(ctx context.Context) error {
	return l.SetHighAddress(ctx, 0)
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	if l.erasure != nil {
		if err := l.erasure.Close(); err != nil {
			firstErr = err
		}
	}
	if err := l.f.Close(); err != nil && firstErr == nil {
		firstErr = kvenv.NewError(kvenv.FileIOError, err)
	}
	return firstErr
}

// CacheHitRate reports -1: FileLog has no built-in cache. Wrap it with CachedLog for a
// redis-backed read-through cache with a real hit rate.
func (l *FileLog) CacheHitRate() float64 { return -1 }
