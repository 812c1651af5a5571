package domain

import (
	"encoding/json"
	"fmt"
)

// Kind tags every message crossing the signaling transport. The mixed
// casing is wire-compat with the web client and kept as-is.
type Kind string

const (
	// Client → server.
	KindAuth          Kind = "auth"
	KindReadingAccept Kind = "reading_accept"
	KindCallConnected Kind = "WEBRTC_CALL_CONNECTED"
	KindPing          Kind = "ping"

	// Relayed verbatim between the two participants.
	KindOffer        Kind = "webrtc_offer"
	KindAnswer       Kind = "webrtc_answer"
	KindICECandidate Kind = "webrtc_ice_candidate"
	KindEndCall      Kind = "webrtc_end_call"
	KindChatMessage  Kind = "chat_message"

	// Server → client.
	KindCallSetupReady          Kind = "CALL_SETUP_READY"
	KindBalanceUpdated          Kind = "ACCOUNT_BALANCE_UPDATED"
	KindParticipantDisconnected Kind = "PARTICIPANT_DISCONNECTED"
	KindEndCallLowBalance       Kind = "WEBRTC_END_CALL_LOW_BALANCE"
	KindEndCallError            Kind = "WEBRTC_END_CALL_ERROR"
	KindReaderStatusChange      Kind = "reader_status_change"
	KindPong                    Kind = "pong"
)

// Relayable reports whether the relay may forward this kind point-to-point.
// Anything else arriving with a recipient is dropped at the boundary.
func (k Kind) Relayable() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate, KindEndCall, KindChatMessage:
		return true
	}
	return false
}

// Envelope is the uniform frame for every signaling message. Payload is
// opaque to the relay: it is forwarded verbatim and never inspected.
type Envelope struct {
	Type        Kind            `json:"type"`
	SessionID   string          `json:"sessionId,omitempty"`
	SenderID    string          `json:"senderId,omitempty"`
	RecipientID string          `json:"recipientId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ValidateRelay checks the fields a point-to-point forward requires.
func (e *Envelope) ValidateRelay() error {
	if !e.Type.Relayable() {
		return fmt.Errorf("%w: kind %q is not relayable", ErrValidation, e.Type)
	}
	if e.SessionID == "" || e.SenderID == "" || e.RecipientID == "" {
		return fmt.Errorf("%w: relay message missing ids", ErrValidation)
	}
	return nil
}
