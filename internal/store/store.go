// Package store implements the persistence collaborator on SQLite via GORM.
// Balance mutations go through AdjustBalance so the debit sufficiency check
// and the write happen in a single SQL statement.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avelin/oracle/internal/config"
	"github.com/avelin/oracle/internal/domain"
)

type Store struct {
	db *gorm.DB
}

func New(cfg config.DBConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path+"?_foreign_keys=ON"), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("raw db handle: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)

	if err := db.AutoMigrate(&userRow{}, &readingRow{}); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// WAL for concurrent readers; busy_timeout so concurrent settlement
	// writes retry instead of failing on a locked database.
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	log.Info().Str("module", "store").Str("path", cfg.Path).Msg("database ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return row.toDomain(), nil
}

// AdjustBalance applies delta to a user's balance atomically and returns the
// new balance. A debit that would take the balance negative is rejected with
// domain.ErrInsufficientFunds without modifying the row.
func (s *Store) AdjustBalance(ctx context.Context, id string, delta int64) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&userRow{}).
		Where("id = ?", id).
		Where("balance_cents + ? >= 0", delta).
		Update("balance_cents", gorm.Expr("balance_cents + ?", delta))
	if tx.Error != nil {
		return 0, fmt.Errorf("adjust balance %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		// Missing row and insufficient balance are indistinguishable
		// from the guarded update alone.
		var row userRow
		err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("adjust balance %s: %w", id, err)
		}
		return row.BalanceCents, fmt.Errorf("user %s: %w", id, domain.ErrInsufficientFunds)
	}

	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return 0, fmt.Errorf("reload balance %s: %w", id, err)
	}
	return row.BalanceCents, nil
}

func (s *Store) GetReading(ctx context.Context, id string) (*domain.Reading, error) {
	var row readingRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("reading %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reading %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateReading(ctx context.Context, id string, patch domain.ReadingPatch) error {
	fields := map[string]any{}
	if patch.Status != nil {
		fields["status"] = string(*patch.Status)
	}
	if patch.BilledMinutes != nil {
		fields["billed_minutes"] = *patch.BilledMinutes
	}
	if patch.TotalPriceCents != nil {
		fields["total_price_cents"] = *patch.TotalPriceCents
	}
	if patch.StartedAt != nil {
		fields["started_at"] = *patch.StartedAt
	}
	if patch.EndedAt != nil {
		fields["ended_at"] = *patch.EndedAt
	}
	if len(fields) == 0 {
		return nil
	}
	tx := s.db.WithContext(ctx).Model(&readingRow{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return fmt.Errorf("update reading %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("reading %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CreateUser and CreateReading exist for booking flows and dev seeding; the
// coordinator itself never creates rows.

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	row := userRow{ID: u.ID, Username: u.Username, Role: string(u.Role), BalanceCents: u.BalanceCents}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) CreateReading(ctx context.Context, r *domain.Reading) error {
	row := readingRow{
		ID:                  r.ID,
		ClientID:            r.ClientID,
		ReaderID:            r.ReaderID,
		PricePerMinuteCents: r.PricePerMinuteCents,
		Status:              string(r.Status),
		BilledMinutes:       r.BilledMinutes,
		TotalPriceCents:     r.TotalPriceCents,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create reading %s: %w", r.ID, err)
	}
	return nil
}
