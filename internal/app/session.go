package app

import (
	"sync"
	"time"
)

type State string

const (
	StatePending    State = "PENDING"
	StateActive     State = "ACTIVE"
	StatePaused     State = "PAUSED"
	StateFinalizing State = "FINALIZING"
	StateClosed     State = "CLOSED"
)

// timerHandle identifies one activation of the billing clock. A tick carries
// the handle id that scheduled it; if the session's current handle differs,
// the tick is stale and must not touch balances.
type timerHandle struct {
	id     string
	cancel func()
}

// Session is the in-memory mirror of an in-progress reading. Identity fields
// are immutable for the session's lifetime; everything under mu is mutated
// only by the billing clock and the terminator, while holding mu.
type Session struct {
	ID                  string
	ClientID            string
	ReaderID            string
	PricePerMinuteCents int64

	mu            sync.Mutex
	state         State
	billedMinutes int64
	participants  map[string]struct{}
	timer         *timerHandle
	grace         *time.Timer
}

func newSession(id, clientID, readerID string, priceCents int64) *Session {
	return &Session{
		ID:                  id,
		ClientID:            clientID,
		ReaderID:            readerID,
		PricePerMinuteCents: priceCents,
		state:               StatePending,
		participants:        make(map[string]struct{}),
	}
}

// PeerOf returns the other participant, or "" if uid is neither.
func (s *Session) PeerOf(uid string) string {
	switch uid {
	case s.ClientID:
		return s.ReaderID
	case s.ReaderID:
		return s.ClientID
	}
	return ""
}

func (s *Session) bothConnectedLocked() bool {
	_, c := s.participants[s.ClientID]
	_, r := s.participants[s.ReaderID]
	return c && r
}

// stopTimerLocked is the cancellation primitive: it must run before the
// registry entry is removed, and a nil timer means no tick may bill.
func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.cancel()
		s.timer = nil
	}
}

func (s *Session) stopGraceLocked() {
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BilledMinutes returns the minutes settled so far.
func (s *Session) BilledMinutes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.billedMinutes
}

// Participants returns a copy of the connected participant set.
func (s *Session) Participants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.participants))
	for uid := range s.participants {
		out = append(out, uid)
	}
	return out
}
