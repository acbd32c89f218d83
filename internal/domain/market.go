package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
//
// The state machine is strictly forward: open -> closed -> resolved. A market
// closes once its deadline passes, and resolves exactly once by its resolution
// authority. Cancelled is reachable only from open and only while the market
// has zero bets.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Outcome is one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Valid reports whether o is one of the two recognised outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// FeeDenominator is the basis-point scale used for platform fees and
// consensus prices.
const FeeDenominator = 10_000

// MarketParams holds the per-market configuration fixed at creation time.
// JSON names match the wire schema used by existing clients.
type MarketParams struct {
	// MinBet and MaxBet bound a single wager, in the smallest currency unit.
	MinBet uint64 `json:"minBet"`
	MaxBet uint64 `json:"maxBet"`

	// PlatformFeeBps is the fee taken from gross winnings, in basis points.
	PlatformFeeBps uint16 `json:"platformFeeBps"`

	// ResolutionDelay is how long after resolution claims stay shut, in
	// seconds. Gives the authority a window to spot a bad resolution before
	// funds move.
	ResolutionDelay int64 `json:"resolutionDelay"`
}

// Market is a binary-outcome prediction market with two mutually exclusive
// liquidity pools. The market owns its pools: only bet placement may grow
// them, and nothing ever shrinks them.
type Market struct {
	ID       string `json:"id"`
	Creator  string `json:"creator"`
	Question string `json:"question"`
	Category string `json:"category"`

	// Authority is the identity permitted to resolve or cancel this market.
	Authority string `json:"authority"`

	YesPool uint64 `json:"yesPool"`
	NoPool  uint64 `json:"noPool"`

	Params MarketParams `json:"params"`

	// EndTime is the betting deadline. No bets are accepted at or after it.
	EndTime time.Time `json:"endTime"`

	Status MarketStatus `json:"status"`

	// WinningOutcome is set exactly once, when the market resolves.
	WinningOutcome *Outcome   `json:"winningOutcome,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	// TotalBets counts positions ever recorded against this market.
	TotalBets uint64 `json:"totalBets"`

	// ConsensusPriceBps is the yes-pool share of the total pool in basis
	// points, updated on every bet. Nil until the first bet lands.
	ConsensusPriceBps *uint64 `json:"consensusPriceBps,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TotalPool returns the combined size of both pools.
func (m Market) TotalPool() uint64 {
	return m.YesPool + m.NoPool
}

// Pool returns the pool backing the given side.
func (m Market) Pool(side Outcome) uint64 {
	if side == OutcomeYes {
		return m.YesPool
	}
	return m.NoPool
}

// Terminal reports whether the market can never change state again.
func (m Market) Terminal() bool {
	return m.Status == MarketStatusResolved || m.Status == MarketStatusCancelled
}

// ClaimsOpenAt returns the earliest instant at which claims are accepted,
// or the zero time if the market is not resolved yet.
func (m Market) ClaimsOpenAt() time.Time {
	if m.ResolvedAt == nil {
		return time.Time{}
	}
	return m.ResolvedAt.Add(time.Duration(m.Params.ResolutionDelay) * time.Second)
}

// Sentiment is a read-only pricing snapshot of a market, served to display
// clients. Prices are advisory only; realized payouts come from final pool
// ratios at resolution.
type Sentiment struct {
	MarketID          string  `json:"marketId"`
	YesPrice          float64 `json:"yesPrice"`
	NoPrice           float64 `json:"noPrice"`
	YesPool           uint64  `json:"yesPool"`
	NoPool            uint64  `json:"noPool"`
	TotalBets         uint64  `json:"totalBets"`
	ConsensusPriceBps *uint64 `json:"consensusPriceBps,omitempty"`
}
