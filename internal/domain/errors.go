package domain

import "errors"

var (
	// ErrNotFound: a user or reading the coordinator depends on is missing.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientFunds: the client balance cannot cover one more minute.
	// Expected during normal operation, never logged as an error.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrStaleTimer: a billing tick fired against a handle that no longer
	// matches the registry entry. Resolved as a silent no-op.
	ErrStaleTimer = errors.New("stale billing timer")
	// ErrValidation: malformed signaling message; logged and dropped.
	ErrValidation = errors.New("invalid message")
)
