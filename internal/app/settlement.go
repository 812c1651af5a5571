package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/domain"
)

// ReaderShare is the reader's cut of one charge, floored. The platform
// retains the remainder; this split applies to every money movement in the
// system.
func ReaderShare(chargeCents, sharePct int64) int64 {
	return chargeCents * sharePct / 100
}

// PlatformShare is what the platform retains from one charge.
func PlatformShare(chargeCents, sharePct int64) int64 {
	return chargeCents - ReaderShare(chargeCents, sharePct)
}

// Settlement performs the per-tick funds transfer. It is not atomic across
// its store calls, so callers must hold the session mutex for the whole
// operation; that single-writer discipline is what keeps two ticks, or a
// tick racing an end-call, from interleaving on the same balances.
type Settlement struct {
	store          Store
	readerSharePct int64
}

func NewSettlement(store Store, readerSharePct int64) *Settlement {
	return &Settlement{store: store, readerSharePct: readerSharePct}
}

type SettleResult struct {
	NewClientBalance int64
	NewReaderBalance int64
	Billed           bool
}

// SettleTick charges one minute: debit the client the full price, credit the
// reader their share, increment the session's billed minutes and persist
// them on the reading. Billed=false with a nil error is the expected
// insufficient-balance outcome.
//
// Caller holds s.mu.
func (e *Settlement) SettleTick(ctx context.Context, s *Session, client, reader *domain.User) (SettleResult, error) {
	price := s.PricePerMinuteCents
	if client.BalanceCents < price {
		return SettleResult{
			NewClientBalance: client.BalanceCents,
			NewReaderBalance: reader.BalanceCents,
		}, nil
	}

	newClient, err := e.store.AdjustBalance(ctx, client.ID, -price)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		// Balance moved under us outside the coordinator (e.g. a
		// concurrent shop purchase). Treated the same as the check
		// failing up front.
		return SettleResult{
			NewClientBalance: newClient,
			NewReaderBalance: reader.BalanceCents,
		}, nil
	}
	if err != nil {
		return SettleResult{}, err
	}

	credit := ReaderShare(price, e.readerSharePct)
	newReader, err := e.store.AdjustBalance(ctx, reader.ID, credit)
	if err != nil {
		// The client debit stands, so the minute counts either way.
		// The missed credit is logged for reconciliation.
		log.Error().Str("module", "app.settlement").Str("session", s.ID).
			Str("reader", reader.ID).Int64("credit_cents", credit).
			Err(err).Msg("reader credit failed")
		newReader = reader.BalanceCents
	}

	s.billedMinutes++
	minutes := s.billedMinutes
	if err := e.store.UpdateReading(ctx, s.ID, domain.ReadingPatch{BilledMinutes: &minutes}); err != nil {
		log.Error().Str("module", "app.settlement").Str("session", s.ID).
			Int64("billed_minutes", minutes).Err(err).Msg("persist billed minutes failed")
	}

	log.Info().Str("module", "app.settlement").Str("session", s.ID).
		Int64("billed_minutes", minutes).Int64("charge_cents", price).
		Int64("reader_credit_cents", credit).
		Int64("platform_cents", price-credit).Msg("settled tick")

	return SettleResult{
		NewClientBalance: newClient,
		NewReaderBalance: newReader,
		Billed:           true,
	}, nil
}
