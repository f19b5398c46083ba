package walog

import (
	"os"
	"sync"

	"github.com/SharedCode/kvenv"
	"github.com/klauspost/reedsolomon"
	"github.com/ncw/directio"
)

// erasureWriter maintains a reed-solomon parity shard file alongside a FileLog's primary data
// file. It never touches the primary append stream: variable-length record frames don't align to
// directio's block size, so instead it buffers frame bytes in RAM until it has accumulated one
// full chunk (dataShards * directio.BlockSize), encodes that chunk's parity shards, and writes
// only the parity shards to the parity file with O_DIRECT, aligned writes. A chunk's leftover data
// shard bytes stay in the primary log itself (already durable via FileLog.Append's fsync), so
// losing the in-RAM buffer on crash loses only that chunk's not-yet-computed parity, never data.
type erasureWriter struct {
	mu sync.Mutex

	dataShards   int
	parityShards int
	chunkSize    int // dataShards * directio.BlockSize
	enc          reedsolomon.Encoder

	buf       []byte
	chunkSeq  int64
	parity    *os.File
	parityOff int64
}

func newErasureWriter(path string, dataShards, parityShards int) (*erasureWriter, error) {
	if dataShards <= 0 {
		dataShards = 4
	}
	if parityShards <= 0 {
		parityShards = 2
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	return &erasureWriter{
		dataShards:   dataShards,
		parityShards: parityShards,
		chunkSize:    dataShards * directio.BlockSize,
		enc:          enc,
		parity:       f,
	}, nil
}

// Observe appends frame bytes to the pending chunk buffer, flushing a parity block each time a
// full chunk accumulates.
func (w *erasureWriter) Observe(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, frame...)
	for len(w.buf) >= w.chunkSize {
		if err := w.flushChunkLocked(w.buf[:w.chunkSize]); err != nil {
			return err
		}
		w.buf = w.buf[w.chunkSize:]
	}
	return nil
}

func (w *erasureWriter) flushChunkLocked(chunk []byte) error {
	shards, err := w.enc.Split(chunk)
	if err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}
	if err := w.enc.Encode(shards); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}

	block := directio.AlignedBlock(directio.BlockSize)
	for i := w.dataShards; i < w.dataShards+w.parityShards; i++ {
		copy(block, shards[i])
		if _, err := w.parity.WriteAt(block, w.parityOff); err != nil {
			return kvenv.NewError(kvenv.FileIOError, err)
		}
		w.parityOff += int64(directio.BlockSize)
	}
	w.chunkSeq++
	return nil
}

// Close flushes no partial trailing chunk (reedsolomon.Split requires a full-size input); any
// final sub-chunk tail is left unprotected, matching parity-on-best-effort semantics.
func (w *erasureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.parity.Sync(); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}
	return w.parity.Close()
}
