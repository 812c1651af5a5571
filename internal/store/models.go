package store

import (
	"time"

	"github.com/avelin/oracle/internal/domain"
)

// userRow and readingRow are the GORM models backing the persistence
// collaborator. Domain types stay free of gorm tags.

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"index;not null"`
	Role         string `gorm:"type:text;check:role IN ('client','reader');not null"`
	BalanceCents int64  `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (u *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           u.ID,
		Username:     u.Username,
		Role:         domain.Role(u.Role),
		BalanceCents: u.BalanceCents,
	}
}

type readingRow struct {
	ID                  string `gorm:"primaryKey"`
	ClientID            string `gorm:"index;not null"`
	ReaderID            string `gorm:"index;not null"`
	PricePerMinuteCents int64  `gorm:"not null"`
	Status              string `gorm:"type:text;check:status IN ('scheduled','waiting_payment','payment_completed','in_progress','completed','cancelled');index;not null"`
	BilledMinutes       int64  `gorm:"not null;default:0"`
	TotalPriceCents     int64  `gorm:"not null;default:0"`
	StartedAt           *time.Time
	EndedAt             *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (readingRow) TableName() string { return "readings" }

func (r *readingRow) toDomain() *domain.Reading {
	return &domain.Reading{
		ID:                  r.ID,
		ClientID:            r.ClientID,
		ReaderID:            r.ReaderID,
		PricePerMinuteCents: r.PricePerMinuteCents,
		Status:              domain.ReadingStatus(r.Status),
		BilledMinutes:       r.BilledMinutes,
		TotalPriceCents:     r.TotalPriceCents,
		StartedAt:           r.StartedAt,
		EndedAt:             r.EndedAt,
	}
}
