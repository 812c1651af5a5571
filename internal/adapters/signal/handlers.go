package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

// handleMessage validates the envelope at the boundary and dispatches on the
// typed kind. Malformed messages are logged and dropped; they never change
// state.
func (ctl *Controller) handleMessage(ctx context.Context, connID string, c *WsConn, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", connID).Msg("bad json, dropped")
		return
	}

	if !ctl.limiter.Allow(connID) {
		log.Warn().Str("module", "signal").Str("conn", connID).
			Str("type", string(env.Type)).Msg("rate limited, dropped")
		return
	}

	switch env.Type {
	case domain.KindPing:
		ctl.sendJSON(c, domain.Envelope{Type: domain.KindPong})
	case domain.KindAuth:
		ctl.handleAuth(connID, c, env)
	case domain.KindReadingAccept:
		ctl.requireAuth(c, func(uid string) {
			if env.SessionID == "" {
				log.Warn().Str("module", "signal").Str("conn", connID).Msg("accept without session id, dropped")
				return
			}
			if err := ctl.Coord.AcceptReading(ctx, env.SessionID, uid); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("session", env.SessionID).Msg("accept rejected")
			}
		})
	case domain.KindCallConnected:
		ctl.requireAuth(c, func(uid string) {
			if env.SessionID == "" {
				log.Warn().Str("module", "signal").Str("conn", connID).Msg("connected without session id, dropped")
				return
			}
			if err := ctl.Coord.CallConnected(ctx, env.SessionID, uid); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("session", env.SessionID).Msg("connected rejected")
			}
		})
	case domain.KindEndCall:
		ctl.requireAuth(c, func(uid string) {
			ctl.Coord.EndCall(ctx, env.SessionID, uid)
		})
	case domain.KindOffer, domain.KindAnswer, domain.KindICECandidate, domain.KindChatMessage:
		ctl.requireAuth(c, func(uid string) {
			// The sender id is always the authenticated user, whatever
			// the client put in the envelope.
			env.SenderID = uid
			if err := ctl.Coord.Forward(env); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("type", string(env.Type)).Msg("relay rejected")
			}
		})
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

// handleAuth binds the connection to a user. The token is verified upstream
// by the auth middleware; a malformed payload is logged and dropped.
func (ctl *Controller) handleAuth(connID string, c *WsConn, env domain.Envelope) {
	var p struct {
		UserID string      `json:"userId"`
		Role   domain.Role `json:"role"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", connID).Msg("bad auth payload, dropped")
		return
	}
	if err := ctl.Coord.Authenticate(connID, p.UserID, p.Role); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", connID).Msg("auth rejected")
		return
	}
	c.setUserID(p.UserID)
}

func (ctl *Controller) requireAuth(c *WsConn, fn func(uid string)) {
	uid := c.UserID()
	if uid == "" {
		log.Warn().Str("module", "signal").Msg("message before auth, dropped")
		return
	}
	fn(uid)
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
