package engine

import (
	"math/bits"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// Price returns the implied probability of side winning, derived from the
// pool ratio. An empty market prices both sides at even odds.
//
// This is a constant-ratio model, not an order book: the price is simply the
// side's share of committed capital.
func Price(m domain.Market, side domain.Outcome) float64 {
	total := m.TotalPool()
	if total == 0 {
		return 0.5
	}
	return float64(m.Pool(side)) / float64(total)
}

// ConsensusPriceBps returns the yes-pool share of the total pool in basis
// points, or 5000 for an empty market.
func ConsensusPriceBps(m domain.Market) uint64 {
	total := m.TotalPool()
	if total == 0 {
		return domain.FeeDenominator / 2
	}
	hi, lo := bits.Mul64(m.YesPool, domain.FeeDenominator)
	bps, _ := bits.Div64(hi, lo, total) // hi < total: yes_pool <= total and 10000 << 2^64
	return bps
}

// PotentialPayout estimates the gross return of a hypothetical bet of amount
// on side at current pool sizes.
//
// Advisory only, for display: the bet itself and every later bet move the
// pools, so the realized payout is computed from final pool ratios at
// resolution and will generally differ. That divergence is intentional, not
// a bug.
func PotentialPayout(m domain.Market, side domain.Outcome, amount uint64) uint64 {
	if amount == 0 {
		return 0
	}
	// Evaluate as if this bet had joined the pool: share of the grown total.
	total := m.TotalPool() + amount
	winning := m.Pool(side) + amount

	hi, lo := bits.Mul64(amount, total)
	if hi >= winning {
		return ^uint64(0) // saturate rather than mislead the display
	}
	payout, _ := bits.Div64(hi, lo, winning)
	return payout
}

// Snapshot builds the read-only pricing view served to display clients.
func Snapshot(m domain.Market) domain.Sentiment {
	return domain.Sentiment{
		MarketID:          m.ID,
		YesPrice:          Price(m, domain.OutcomeYes),
		NoPrice:           Price(m, domain.OutcomeNo),
		YesPool:           m.YesPool,
		NoPool:            m.NoPool,
		TotalBets:         m.TotalBets,
		ConsensusPriceBps: m.ConsensusPriceBps,
	}
}
