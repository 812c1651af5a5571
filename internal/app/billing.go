package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

// Clock drives the recurring settlement of active sessions. Each activation
// spawns one ticker goroutine carrying a fresh handle id; a tick whose
// handle no longer matches the session's current one is stale and does
// nothing. Stale handles are the guard against a tick firing after the
// session was paused or closed between scheduling and delivery.
type Clock struct {
	registry *Registry
	store    Store
	notify   Notifier
	settle   *Settlement
	term     *Terminator
	interval time.Duration
}

func NewClock(registry *Registry, store Store, notify Notifier, settle *Settlement, term *Terminator, interval time.Duration) *Clock {
	return &Clock{
		registry: registry,
		store:    store,
		notify:   notify,
		settle:   settle,
		term:     term,
		interval: interval,
	}
}

// MarkConnected records that userID signaled connected on the session and
// activates (or resumes) billing once both participants are present.
// Duplicate connected signals are absorbed by the set semantics; a second
// activation attempt while the timer is already running is a no-op.
func (c *Clock) MarkConnected(ctx context.Context, s *Session, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalizing || s.state == StateClosed {
		return
	}
	if s.PeerOf(userID) == "" {
		log.Warn().Str("module", "app.billing").Str("session", s.ID).
			Str("user", userID).Msg("connected signal from non-participant dropped")
		return
	}
	s.participants[userID] = struct{}{}
	if !s.bothConnectedLocked() {
		return
	}

	switch s.state {
	case StatePending:
		if s.timer != nil {
			return
		}
		now := time.Now()
		status := domain.ReadingInProgress
		patch := domain.ReadingPatch{Status: &status, StartedAt: &now}
		if err := c.store.UpdateReading(ctx, s.ID, patch); err != nil {
			log.Error().Str("module", "app.billing").Str("session", s.ID).
				Err(err).Msg("mark reading in progress failed")
			return
		}
		c.startLocked(s)
		log.Info().Str("module", "app.billing").Str("session", s.ID).Msg("session active, billing started")
	case StatePaused:
		s.stopGraceLocked()
		c.startLocked(s)
		log.Info().Str("module", "app.billing").Str("session", s.ID).Msg("session resumed")
	case StateActive:
		// Reconnect of an extra tab while already running.
	}
}

// startLocked issues a fresh handle and starts the ticker goroutine.
// Caller holds s.mu.
func (c *Clock) startLocked(s *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &timerHandle{id: uuid.NewString(), cancel: cancel}
	s.timer = h
	s.state = StateActive
	go c.run(ctx, s.ID, h.id)
}

func (c *Clock) run(ctx context.Context, sessionID, handle string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(context.Background(), sessionID, handle)
		}
	}
}

// Tick settles one billing interval. It re-resolves the session by id — the
// registry entry, not anything captured at scheduling time — and bails out
// silently if the handle is stale. The session mutex is held across the
// whole check→debit→credit→persist unit.
func (c *Clock) Tick(ctx context.Context, sessionID, handle string) {
	s, ok := c.registry.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.timer == nil || s.timer.id != handle {
		log.Debug().Str("module", "app.billing").Str("session", sessionID).Msg("stale tick ignored")
		return
	}

	client, cerr := c.store.GetUser(ctx, s.ClientID)
	reader, rerr := c.store.GetUser(ctx, s.ReaderID)
	if cerr != nil || rerr != nil {
		if isNotFound(cerr) || isNotFound(rerr) {
			log.Error().Str("module", "app.billing").Str("session", s.ID).
				AnErr("client_err", cerr).AnErr("reader_err", rerr).
				Msg("participant record missing, cancelling session")
			c.term.finalizeLocked(ctx, s, outcome{
				status: domain.ReadingCancelled,
				kind:   domain.KindEndCallError,
				reason: "data_error",
			})
			return
		}
		// Transient store failure: skip this tick, leave the session
		// running for the next one.
		log.Error().Str("module", "app.billing").Str("session", s.ID).
			AnErr("client_err", cerr).AnErr("reader_err", rerr).Msg("tick load failed")
		return
	}

	res, err := c.settle.SettleTick(ctx, s, client, reader)
	if err != nil {
		if isNotFound(err) {
			c.term.finalizeLocked(ctx, s, outcome{
				status: domain.ReadingCancelled,
				kind:   domain.KindEndCallError,
				reason: "data_error",
			})
			return
		}
		log.Error().Str("module", "app.billing").Str("session", s.ID).Err(err).Msg("settlement failed")
		return
	}

	if !res.Billed {
		c.term.finalizeLocked(ctx, s, outcome{
			status: domain.ReadingCancelled,
			kind:   domain.KindEndCallLowBalance,
			reason: "low_balance",
		})
		return
	}

	_ = c.notify.Send(s.ClientID, domain.Envelope{
		Type:      domain.KindBalanceUpdated,
		SessionID: s.ID,
		Payload: mustPayload(map[string]int64{
			"balanceCents":  res.NewClientBalance,
			"billedMinutes": s.billedMinutes,
		}),
	})
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, domain.ErrNotFound)
}
