package engine

import (
	"time"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// CloseIfDue performs the lazy open -> closed transition: if the market is
// open and its deadline has passed, it is marked closed in place. Returns
// true when a transition happened. Any read path may call this; the
// transition is idempotent.
func CloseIfDue(m *domain.Market, now time.Time) bool {
	if m.Status != domain.MarketStatusOpen {
		return false
	}
	if now.Before(m.EndTime) {
		return false
	}
	m.Status = domain.MarketStatusClosed
	m.UpdatedAt = now
	return true
}

// Resolve performs the closed -> resolved transition. Only the market's
// resolution authority may resolve, exactly once, and only after the
// deadline. The engine enforces state-machine legality only; whether the
// outcome matches reality is the authority's problem.
//
// There is no early close: an open market before its deadline rejects with
// ErrNotYetClosed.
func Resolve(m *domain.Market, outcome domain.Outcome, authority string, now time.Time) error {
	if !outcome.Valid() {
		return domain.ErrInvalidAmount
	}
	if authority != m.Authority {
		return domain.ErrUnauthorized
	}

	CloseIfDue(m, now)

	switch m.Status {
	case domain.MarketStatusOpen:
		return domain.ErrNotYetClosed
	case domain.MarketStatusResolved:
		return domain.ErrAlreadyResolved
	case domain.MarketStatusCancelled:
		return domain.ErrMarketCancelled
	}

	m.Status = domain.MarketStatusResolved
	m.WinningOutcome = &outcome
	m.ResolvedAt = &now
	m.UpdatedAt = now
	return nil
}

// Cancel voids an open market that has never taken a bet. Cancelled is
// terminal: no bets, no resolution, no claims.
func Cancel(m *domain.Market, authority string, now time.Time) error {
	if authority != m.Authority {
		return domain.ErrUnauthorized
	}
	switch m.Status {
	case domain.MarketStatusResolved:
		return domain.ErrAlreadyResolved
	case domain.MarketStatusCancelled:
		return domain.ErrMarketCancelled
	case domain.MarketStatusClosed:
		return domain.ErrMarketClosed
	}
	if m.TotalBets > 0 {
		return domain.ErrBetsAlreadyPlaced
	}
	m.Status = domain.MarketStatusCancelled
	m.UpdatedAt = now
	return nil
}
