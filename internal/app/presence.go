package app

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

type presenceEntry struct {
	conn   SignalConn
	userID string
	role   domain.Role
}

// Tracker binds transport connections to authenticated users and doubles as
// the Notifier: a send fans out to every connection the user holds
// (multi-tab), a user with none is a silent no-op.
type Tracker struct {
	mu     sync.RWMutex
	conns  map[string]*presenceEntry
	byUser map[string]map[string]*presenceEntry
}

func NewTracker() *Tracker {
	return &Tracker{
		conns:  make(map[string]*presenceEntry),
		byUser: make(map[string]map[string]*presenceEntry),
	}
}

func (t *Tracker) Register(connID string, conn SignalConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[connID] = &presenceEntry{conn: conn}
	log.Info().Str("module", "app.presence").Str("conn", connID).Msg("registered connection")
}

// Authenticate binds a connection to a user. The first authenticated
// connection of a reader broadcasts their "online" status.
func (t *Tracker) Authenticate(connID, userID string, role domain.Role) error {
	if userID == "" || !role.Valid() {
		return fmt.Errorf("%w: bad auth payload", domain.ErrValidation)
	}
	t.mu.Lock()
	e, ok := t.conns[connID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: unknown connection %s", domain.ErrValidation, connID)
	}
	if e.userID != "" && e.userID != userID {
		// Re-auth as someone else: drop the old binding first.
		delete(t.byUser[e.userID], connID)
		if len(t.byUser[e.userID]) == 0 {
			delete(t.byUser, e.userID)
		}
	}
	e.userID = userID
	e.role = role
	first := len(t.byUser[userID]) == 0
	if t.byUser[userID] == nil {
		t.byUser[userID] = make(map[string]*presenceEntry)
	}
	t.byUser[userID][connID] = e
	t.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("conn", connID).
		Str("user", userID).Str("role", string(role)).Msg("authenticated")
	if role == domain.RoleReader && first {
		t.broadcastReaderStatus(userID, "online")
	}
	return nil
}

// Unregister drops a connection. It returns the bound user id and whether
// this was the user's last connection, so the caller can treat it as a
// participant disconnect.
func (t *Tracker) Unregister(connID string) (userID string, last bool) {
	t.mu.Lock()
	e, ok := t.conns[connID]
	if !ok {
		t.mu.Unlock()
		return "", false
	}
	delete(t.conns, connID)
	var role domain.Role
	if e.userID != "" {
		userID = e.userID
		role = e.role
		delete(t.byUser[userID], connID)
		if len(t.byUser[userID]) == 0 {
			delete(t.byUser, userID)
			last = true
		}
	}
	t.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("conn", connID).
		Str("user", userID).Bool("last", last).Msg("unregistered connection")
	if last && role == domain.RoleReader {
		t.broadcastReaderStatus(userID, "offline")
	}
	return userID, last
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser[userID]) > 0
}

// OnlineReaders returns the ids of readers with at least one connection.
func (t *Tracker) OnlineReaders() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	seen := make(map[string]struct{})
	for _, conns := range t.byUser {
		for _, e := range conns {
			if e.role != domain.RoleReader {
				continue
			}
			if _, ok := seen[e.userID]; ok {
				continue
			}
			seen[e.userID] = struct{}{}
			out = append(out, e.userID)
		}
	}
	return out
}

// Send delivers env to every connection of userID, best-effort. A slow or
// closed connection never fails the others; no connections at all is fine.
func (t *Tracker) Send(userID string, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	t.mu.RLock()
	targets := make([]SignalConn, 0, len(t.byUser[userID]))
	for _, e := range t.byUser[userID] {
		targets = append(targets, e.conn)
	}
	t.mu.RUnlock()

	for _, c := range targets {
		if err := c.TrySend(data); err != nil {
			log.Debug().Str("module", "app.presence").Str("user", userID).
				Str("type", string(env.Type)).Err(err).Msg("send dropped")
		}
	}
	return nil
}

func (t *Tracker) Broadcast(env domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Str("module", "app.presence").Err(err).Msg("broadcast marshal")
		return
	}
	t.mu.RLock()
	targets := make([]SignalConn, 0, len(t.conns))
	for _, e := range t.conns {
		targets = append(targets, e.conn)
	}
	t.mu.RUnlock()

	for _, c := range targets {
		_ = c.TrySend(data)
	}
}

func (t *Tracker) broadcastReaderStatus(readerID, status string) {
	t.Broadcast(domain.Envelope{
		Type:    domain.KindReaderStatusChange,
		Payload: mustPayload(map[string]string{"readerId": readerID, "status": status}),
	})
}
