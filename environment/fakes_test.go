package environment

import (
	"context"

	"github.com/SharedCode/kvenv"
	"github.com/SharedCode/kvenv/walog"
)

// faultyLog wraps a walog.MemLog and can be told to fail the next Append and/or SetHighAddress
// call, for the rollback and inoperative-latch scenarios spec.md §8 names.
type faultyLog struct {
	*walog.MemLog
	failNextAppend         bool
	failNextSetHighAddress bool
}

func newFaultyLog() *faultyLog {
	return &faultyLog{MemLog: walog.NewMemLog()}
}

func (f *faultyLog) Append(ctx context.Context, records [][]byte) ([]int64, error) {
	if f.failNextAppend {
		f.failNextAppend = false
		return nil, kvenv.NewError(kvenv.FileIOError, errInjectedFailure{})
	}
	return f.MemLog.Append(ctx, records)
}

func (f *faultyLog) SetHighAddress(ctx context.Context, address int64) error {
	if f.failNextSetHighAddress {
		f.failNextSetHighAddress = false
		return kvenv.NewError(kvenv.FileIOError, errInjectedFailure{})
	}
	return f.MemLog.SetHighAddress(ctx, address)
}

type errInjectedFailure struct{}

func (errInjectedFailure) Error() string { return "injected failure" }
