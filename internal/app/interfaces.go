// Package app holds the session coordinator: presence tracking, the session
// registry, the billing clock, settlement and termination. All mutation of a
// session goes through its own mutex; operations on different sessions never
// block each other.
package app

import (
	"context"

	"github.com/avelin/oracle/internal/domain"
)

// Store is the persistence collaborator. Every call is a suspension point:
// callers that span multiple calls must hold the session mutex for the whole
// unit.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	// AdjustBalance applies deltaCents atomically and returns the new
	// balance. Debits below zero fail with domain.ErrInsufficientFunds.
	AdjustBalance(ctx context.Context, id string, deltaCents int64) (int64, error)
	GetReading(ctx context.Context, id string) (*domain.Reading, error)
	UpdateReading(ctx context.Context, id string, patch domain.ReadingPatch) error
}

// Notifier delivers messages to users over whatever transport connections
// they currently hold. Delivery is best-effort: a user with no live
// connection is a silent no-op.
type Notifier interface {
	Send(userID string, env domain.Envelope) error
	Broadcast(env domain.Envelope)
}

// SignalConn abstracts one transport connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend([]byte) error
	Close()
}
