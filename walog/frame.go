package walog

import (
	"encoding/binary"

	"github.com/SharedCode/kvenv"
)

// frameHeaderSize is the length prefix size: an 8-byte big-endian record length.
const frameHeaderSize = 8

// frameRecord prepends an 8-byte big-endian length to payload.
func frameRecord(payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint64(frame, uint64(len(payload)))
	copy(frame[frameHeaderSize:], payload)
	return frame
}

// unframe strips the length prefix and validates the declared length matches the buffer.
func unframe(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, kvenv.NewError(kvenv.Unknown, errTruncatedFrame{})
	}
	n := binary.BigEndian.Uint64(frame)
	payload := frame[frameHeaderSize:]
	if uint64(len(payload)) != n {
		return nil, kvenv.NewError(kvenv.Unknown, errTruncatedFrame{})
	}
	return payload, nil
}

type errTruncatedFrame struct{}

func (errTruncatedFrame) Error() string { return "walog: truncated record frame" }
