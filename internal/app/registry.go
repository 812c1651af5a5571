package app

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the authoritative table of live billed sessions, keyed by
// session id. It is owned by the server process and injected into whoever
// needs it; there is no package-level instance.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate is idempotent: a second call for an existing id returns the
// existing entry unchanged, whatever arguments it is given.
func (r *Registry) GetOrCreate(id, clientID, readerID string, priceCents int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := newSession(id, clientID, readerID, priceCents)
	r.sessions[id] = s
	log.Info().Str("module", "app.registry").Str("session", id).
		Str("client", clientID).Str("reader", readerID).
		Int64("price_cents", priceCents).Msg("created session")
	return s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("session", id).Msg("removed session")
}

// SessionsFor returns every live session the user participates in.
func (r *Registry) SessionsFor(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.ClientID == userID || s.ReaderID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
