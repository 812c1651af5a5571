package app

import (
	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

// Relay forwards call-setup and chat messages point-to-point between the
// two participants of a session. Payloads are opaque: delivered verbatim,
// never inspected or transformed. A recipient with no live connection is a
// silent no-op.
type Relay struct {
	notify Notifier
}

func NewRelay(notify Notifier) *Relay {
	return &Relay{notify: notify}
}

func (r *Relay) Forward(env domain.Envelope) error {
	if err := env.ValidateRelay(); err != nil {
		return err
	}
	log.Debug().Str("module", "app.relay").Str("session", env.SessionID).
		Str("type", string(env.Type)).Str("from", env.SenderID).
		Str("to", env.RecipientID).Msg("forwarding")
	return r.notify.Send(env.RecipientID, env)
}

// SendCallSetupReady tells both participants the reading is accepted and the
// handshake may begin. The client is always the offer initiator; fixing one
// side prevents both peers from generating an SDP offer at once.
func (r *Relay) SendCallSetupReady(sessionID, clientID, readerID string) {
	payload := mustPayload(map[string]string{"initiatorId": clientID})
	env := domain.Envelope{
		Type:      domain.KindCallSetupReady,
		SessionID: sessionID,
		Payload:   payload,
	}
	_ = r.notify.Send(clientID, env)
	_ = r.notify.Send(readerID, env)
}
