// Package engine implements the settlement core for binary prediction
// markets: bet validation against pool state, implied pricing, the market
// state machine, and payout calculation. Everything here is pure -- the
// package never touches storage, so the same rules apply identically in the
// service layer and in tests.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// ValidateBet checks whether a bet of amount on market m is acceptable at
// the given instant. It does not mutate anything.
//
// Ordering matters: a market past its deadline rejects with ErrMarketClosed
// even when the amount is also bad, so callers can surface the dominant
// reason to the user.
func ValidateBet(m domain.Market, side domain.Outcome, amount uint64, now time.Time) error {
	if m.Status == domain.MarketStatusCancelled {
		return domain.ErrMarketCancelled
	}
	if m.Status != domain.MarketStatusOpen || !now.Before(m.EndTime) {
		return domain.ErrMarketClosed
	}
	if !side.Valid() {
		return domain.ErrInvalidAmount
	}
	if amount == 0 {
		return domain.ErrInvalidAmount
	}
	if amount < m.Params.MinBet || amount > m.Params.MaxBet {
		return domain.ErrBetOutOfRange
	}
	// Pool totals are uint64 lamports; a bet that would wrap the combined
	// pool is rejected up front rather than corrupting the ledger.
	if m.YesPool+m.NoPool > ^uint64(0)-amount {
		return domain.ErrCalculationOverflow
	}
	return nil
}

// ApplyBet validates the bet and, on success, grows the chosen side's pool,
// bumps the bet counter, refreshes the consensus price, and returns the new
// immutable position. The market is mutated in place; the caller owns
// persisting both records atomically.
func ApplyBet(m *domain.Market, side domain.Outcome, bettor string, amount uint64, now time.Time) (domain.Position, error) {
	if err := ValidateBet(*m, side, amount, now); err != nil {
		return domain.Position{}, err
	}

	switch side {
	case domain.OutcomeYes:
		m.YesPool += amount
	case domain.OutcomeNo:
		m.NoPool += amount
	}
	m.TotalBets++
	m.UpdatedAt = now

	bps := ConsensusPriceBps(*m)
	m.ConsensusPriceBps = &bps

	return domain.Position{
		ID:       uuid.New().String(),
		MarketID: m.ID,
		Bettor:   bettor,
		Side:     side,
		Amount:   amount,
		PlacedAt: now,
	}, nil
}
