package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

// Coordinator is the entry point the transport adapter talks to. It wires
// presence, the registry, the relay, the billing clock and the terminator
// together; it holds no state of its own.
type Coordinator struct {
	Tracker  *Tracker
	Registry *Registry
	Relay    *Relay
	Clock    *Clock
	Term     *Terminator
	store    Store
}

func NewCoordinator(tracker *Tracker, registry *Registry, relay *Relay, clock *Clock, term *Terminator, store Store) *Coordinator {
	return &Coordinator{
		Tracker:  tracker,
		Registry: registry,
		Relay:    relay,
		Clock:    clock,
		Term:     term,
		store:    store,
	}
}

// Authenticate binds a transport connection to a user id and role.
func (c *Coordinator) Authenticate(connID, userID string, role domain.Role) error {
	return c.Tracker.Authenticate(connID, userID, role)
}

// Disconnect handles a closed or errored transport connection. Only the
// user's last connection counts as a participant disconnect; other tabs
// keep the session alive.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	userID, last := c.Tracker.Unregister(connID)
	if userID == "" || !last {
		return
	}
	for _, s := range c.Registry.SessionsFor(userID) {
		c.Term.OnDisconnect(ctx, s.ID, userID)
	}
}

// AcceptReading is the reader taking a paid, pending reading. Both sides
// get CALL_SETUP_READY naming the client as offer initiator.
func (c *Coordinator) AcceptReading(ctx context.Context, sessionID, readerID string) error {
	reading, err := c.store.GetReading(ctx, sessionID)
	if err != nil {
		return err
	}
	if reading.ReaderID != readerID {
		return fmt.Errorf("%w: user %s is not the reader of %s", domain.ErrValidation, readerID, sessionID)
	}
	if !reading.Billable() {
		return fmt.Errorf("%w: reading %s is %s", domain.ErrValidation, sessionID, reading.Status)
	}
	log.Info().Str("module", "app.coordinator").Str("session", sessionID).
		Str("reader", readerID).Msg("reading accepted")
	c.Relay.SendCallSetupReady(sessionID, reading.ClientID, reading.ReaderID)
	return nil
}

// CallConnected handles a participant's connected signal. The first signal
// for an unknown session id creates the registry entry from the persisted
// reading; billing activates once both participants have signaled.
func (c *Coordinator) CallConnected(ctx context.Context, sessionID, userID string) error {
	s, ok := c.Registry.Get(sessionID)
	if !ok {
		reading, err := c.store.GetReading(ctx, sessionID)
		if err != nil {
			return err
		}
		if !reading.Participant(userID) {
			return fmt.Errorf("%w: user %s is not a participant of %s", domain.ErrValidation, userID, sessionID)
		}
		if !reading.Billable() {
			return fmt.Errorf("%w: reading %s is %s", domain.ErrValidation, sessionID, reading.Status)
		}
		s = c.Registry.GetOrCreate(sessionID, reading.ClientID, reading.ReaderID, reading.PricePerMinuteCents)
	}
	c.Clock.MarkConnected(ctx, s, userID)
	return nil
}

// EndCall is an explicit end from one participant.
func (c *Coordinator) EndCall(ctx context.Context, sessionID, byUserID string) {
	c.Term.EndExplicit(ctx, sessionID, byUserID)
}

// Forward relays an opaque signaling message to its recipient.
func (c *Coordinator) Forward(env domain.Envelope) error {
	return c.Relay.Forward(env)
}
