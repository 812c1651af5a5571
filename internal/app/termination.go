package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

// Terminator finalizes sessions exactly once: on explicit end, low balance,
// data errors, disconnects, or pause-grace expiry. Finalizing persists the
// reading's final totals before the registry entry is removed, and notifies
// whichever participants are still reachable.
type Terminator struct {
	registry *Registry
	store    Store
	notify   Notifier
	// pauseGrace is how long a PAUSED session waits for a reconnect
	// before forced finalization. Zero disables the deadline.
	pauseGrace time.Duration
}

func NewTerminator(registry *Registry, store Store, notify Notifier, pauseGrace time.Duration) *Terminator {
	return &Terminator{registry: registry, store: store, notify: notify, pauseGrace: pauseGrace}
}

// outcome describes one finalization path.
type outcome struct {
	status domain.ReadingStatus
	kind   domain.Kind
	reason string
	// endedBy is set for explicit ends; the end-call message then goes
	// only to the other participant.
	endedBy string
}

// EndExplicit finalizes a session on a participant's end-call. A second
// call for an already closed (and removed) session is a no-op.
func (t *Terminator) EndExplicit(ctx context.Context, sessionID, byUserID string) {
	s, ok := t.registry.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.finalizeLocked(ctx, s, outcome{
		status:  domain.ReadingCompleted,
		kind:    domain.KindEndCall,
		reason:  "ended_by_participant",
		endedBy: byUserID,
	})
}

// OnDisconnect removes the user from the session's participant set. An
// active session pauses; a session with nobody left finalizes immediately
// so registry entries never leak.
func (t *Terminator) OnDisconnect(ctx context.Context, sessionID, userID string) {
	s, ok := t.registry.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalizing || s.state == StateClosed {
		return
	}
	delete(s.participants, userID)

	if len(s.participants) == 0 {
		t.finalizeLocked(ctx, s, outcome{
			status: domain.ReadingCancelled,
			kind:   domain.KindEndCallError,
			reason: "participants_disconnected",
		})
		return
	}

	if s.state != StateActive {
		return
	}
	s.stopTimerLocked()
	s.state = StatePaused
	log.Info().Str("module", "app.termination").Str("session", s.ID).
		Str("user", userID).Msg("session paused on disconnect")

	_ = t.notify.Send(s.PeerOf(userID), domain.Envelope{
		Type:      domain.KindParticipantDisconnected,
		SessionID: s.ID,
		Payload:   mustPayload(map[string]string{"userId": userID}),
	})

	if t.pauseGrace > 0 {
		sid := s.ID
		s.grace = time.AfterFunc(t.pauseGrace, func() {
			t.FinalizeIfAbandoned(context.Background(), sid)
		})
	}
}

// FinalizeIfAbandoned cancels a session still PAUSED when the reconnect
// grace runs out. Any other state means someone resumed or ended it first.
func (t *Terminator) FinalizeIfAbandoned(ctx context.Context, sessionID string) {
	s, ok := t.registry.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	t.finalizeLocked(ctx, s, outcome{
		status: domain.ReadingCancelled,
		kind:   domain.KindEndCallError,
		reason: "reconnect_timeout",
	})
}

// finalizeLocked runs every termination path: stop the clock, persist final
// totals, notify, remove from the registry. Caller holds s.mu. Safe to call
// twice; the second call is a no-op.
func (t *Terminator) finalizeLocked(ctx context.Context, s *Session, out outcome) {
	if s.state == StateFinalizing || s.state == StateClosed {
		return
	}
	// Stopping the timer happens-before removal: once the handle is nil
	// no tick for this session can mutate balances.
	s.stopTimerLocked()
	s.stopGraceLocked()
	s.state = StateFinalizing

	minutes := s.billedMinutes
	total := minutes * s.PricePerMinuteCents
	now := time.Now()
	patch := domain.ReadingPatch{
		Status:          &out.status,
		BilledMinutes:   &minutes,
		TotalPriceCents: &total,
		EndedAt:         &now,
	}
	if err := t.store.UpdateReading(ctx, s.ID, patch); err != nil {
		// The entry is removed regardless: a session must never sit in
		// the registry forever because persistence is down.
		log.Error().Str("module", "app.termination").Str("session", s.ID).
			Err(err).Msg("final totals not persisted")
	}

	env := domain.Envelope{
		Type:      out.kind,
		SessionID: s.ID,
		SenderID:  out.endedBy,
		Payload: mustPayload(map[string]any{
			"reason":          out.reason,
			"billedMinutes":   minutes,
			"totalPriceCents": total,
		}),
	}
	// Best-effort per recipient: an unreachable side never blocks the other.
	if out.endedBy != "" {
		_ = t.notify.Send(s.PeerOf(out.endedBy), env)
	} else {
		_ = t.notify.Send(s.ClientID, env)
		_ = t.notify.Send(s.ReaderID, env)
	}

	s.state = StateClosed
	t.registry.Remove(s.ID)
	log.Info().Str("module", "app.termination").Str("session", s.ID).
		Str("status", string(out.status)).Str("reason", out.reason).
		Int64("billed_minutes", minutes).Int64("total_cents", total).
		Msg("session finalized")
}
