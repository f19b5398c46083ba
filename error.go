package kvenv

import "fmt"

// ErrorCode enumerates the Environment's error kinds (spec §7).
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// NoSuchStore is raised opening with useExisting or removing a non-existent store.
	NoSuchStore
	// ConfigMismatch is raised opening an existing store with incompatible duplicates/prefixing.
	ConfigMismatch
	// NoTransaction is raised creating a new store without a transaction.
	NoTransaction
	// Inoperative is raised by any operation after a commit+rollback both failed. Sticky for
	// the process lifetime of the Environment.
	Inoperative
	// EnvironmentClosed is raised by any operation after Close.
	EnvironmentClosed
	// Active is raised when Close or Clear is called with live transactions, non-forcibly.
	Active
	// TransactionFailed wraps a failed commit attempt whose rollback succeeded.
	TransactionFailed
	// FileIOError represents file I/O related errors in the log/blob layers.
	FileIOError
)

// Error is a kvenv-specific error carrying a kind, the wrapped cause and optional user data.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.UserData != nil {
		return fmt.Errorf("kvenv error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
	}
	return fmt.Errorf("kvenv error code: %d, details: %w", e.Code, e.Err).Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kvenv.Error with the same Code, so callers can
// write errors.Is(err, kvenv.Error{Code: kvenv.NoSuchStore}).
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError builds a new Error of the given kind wrapping err.
func NewError(code ErrorCode, err error) Error {
	return Error{Code: code, Err: err}
}
