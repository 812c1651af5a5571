package domain

import "time"

type ReadingStatus string

const (
	ReadingScheduled        ReadingStatus = "scheduled"
	ReadingWaitingPayment   ReadingStatus = "waiting_payment"
	ReadingPaymentCompleted ReadingStatus = "payment_completed"
	ReadingInProgress       ReadingStatus = "in_progress"
	ReadingCompleted        ReadingStatus = "completed"
	ReadingCancelled        ReadingStatus = "cancelled"
)

// Reading is the persisted record a live session mirrors. The coordinator
// only ever touches Status, BilledMinutes, TotalPriceCents and the
// timestamps; everything else is written at booking time.
type Reading struct {
	ID                  string        `json:"id"`
	ClientID            string        `json:"clientId"`
	ReaderID            string        `json:"readerId"`
	PricePerMinuteCents int64         `json:"pricePerMinuteCents"`
	Status              ReadingStatus `json:"status"`
	BilledMinutes       int64         `json:"billedMinutes"`
	TotalPriceCents     int64         `json:"totalPriceCents"`
	StartedAt           *time.Time    `json:"startedAt,omitempty"`
	EndedAt             *time.Time    `json:"endedAt,omitempty"`
}

// ReadingPatch is a partial update; nil fields are left untouched.
type ReadingPatch struct {
	Status          *ReadingStatus
	BilledMinutes   *int64
	TotalPriceCents *int64
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// Billable reports whether a session may be opened for this reading.
func (r *Reading) Billable() bool {
	return r.Status == ReadingPaymentCompleted || r.Status == ReadingInProgress
}

// Participant reports whether uid is one of the two parties.
func (r *Reading) Participant(uid string) bool {
	return uid == r.ClientID || uid == r.ReaderID
}

// PeerOf returns the other party of the reading, or "" if uid is neither.
func (r *Reading) PeerOf(uid string) string {
	switch uid {
	case r.ClientID:
		return r.ReaderID
	case r.ReaderID:
		return r.ClientID
	}
	return ""
}
