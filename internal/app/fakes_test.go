package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avelin/oracle/internal/domain"
)

// fakeStore is an in-memory persistence collaborator with the same balance
// guard semantics as the real one.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	readings map[string]*domain.Reading

	getUserErr       map[string]error
	updateReadingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]*domain.User),
		readings:   make(map[string]*domain.Reading),
		getUserErr: make(map[string]error),
	}
}

func (f *fakeStore) addUser(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = &u
}

func (f *fakeStore) addReading(r domain.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings[r.ID] = &r
}

func (f *fakeStore) balance(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].BalanceCents
}

func (f *fakeStore) reading(id string) domain.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.readings[id]
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getUserErr[id]; err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) AdjustBalance(_ context.Context, id string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if u.BalanceCents+delta < 0 {
		return u.BalanceCents, fmt.Errorf("user %s: %w", id, domain.ErrInsufficientFunds)
	}
	u.BalanceCents += delta
	return u.BalanceCents, nil
}

func (f *fakeStore) GetReading(_ context.Context, id string) (*domain.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.readings[id]
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", id, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) UpdateReading(_ context.Context, id string, patch domain.ReadingPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateReadingErr != nil {
		return f.updateReadingErr
	}
	r, ok := f.readings[id]
	if !ok {
		return fmt.Errorf("reading %s: %w", id, domain.ErrNotFound)
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if patch.BilledMinutes != nil {
		r.BilledMinutes = *patch.BilledMinutes
	}
	if patch.TotalPriceCents != nil {
		r.TotalPriceCents = *patch.TotalPriceCents
	}
	if patch.StartedAt != nil {
		r.StartedAt = patch.StartedAt
	}
	if patch.EndedAt != nil {
		r.EndedAt = patch.EndedAt
	}
	return nil
}

// fakeNotifier records every envelope per recipient.
type fakeNotifier struct {
	mu         sync.Mutex
	sent       map[string][]domain.Envelope
	broadcasts []domain.Envelope
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]domain.Envelope)}
}

func (f *fakeNotifier) Send(userID string, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[userID] = append(f.sent[userID], env)
	return nil
}

func (f *fakeNotifier) Broadcast(env domain.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, env)
}

func (f *fakeNotifier) sentTo(userID string) []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Envelope, len(f.sent[userID]))
	copy(out, f.sent[userID])
	return out
}

func (f *fakeNotifier) lastKind(userID string) domain.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Type
}

// fakeConn implements SignalConn for presence tests.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) TrySend(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// testKit wires the coordinator against fakes with a non-firing ticker so
// tests drive ticks by hand.
type testKit struct {
	store    *fakeStore
	notify   *fakeNotifier
	registry *Registry
	settle   *Settlement
	term     *Terminator
	clock    *Clock
	coord    *Coordinator
}

func newTestKit(pauseGrace time.Duration) *testKit {
	st := newFakeStore()
	n := newFakeNotifier()
	reg := NewRegistry()
	settle := NewSettlement(st, 70)
	term := NewTerminator(reg, st, n, pauseGrace)
	clock := NewClock(reg, st, n, settle, term, time.Hour)
	tracker := NewTracker()
	relay := NewRelay(n)
	coord := NewCoordinator(tracker, reg, relay, clock, term, st)
	return &testKit{store: st, notify: n, registry: reg, settle: settle, term: term, clock: clock, coord: coord}
}

// handleOf snapshots the session's current timer handle id.
func handleOf(s *Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return ""
	}
	return s.timer.id
}
