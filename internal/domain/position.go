package domain

import "time"

// Position is a single bettor's stake on one side of one market. Positions
// are append-only: the staked amount contributes to its side's pool exactly
// once at creation and is never modified afterwards. Positions are never
// deleted; they form the market's audit trail.
type Position struct {
	ID       string  `json:"id"`
	MarketID string  `json:"marketId"`
	Bettor   string  `json:"bettor"`
	Side     Outcome `json:"side"`
	Amount   uint64  `json:"amount"`

	PlacedAt time.Time `json:"placedAt"`

	// Claimed flips false -> true exactly once, on successful claim. Losing
	// positions are claimed too, with a zero payout, so a claim is always
	// idempotent.
	Claimed   bool       `json:"claimed"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`

	// Payout is the net amount transferred on claim. Zero for losing
	// positions and for unclaimed ones.
	Payout uint64 `json:"payout"`
}

// Won reports whether the position backed the market's winning outcome.
// False when the market has not resolved.
func (p Position) Won(m Market) bool {
	return m.WinningOutcome != nil && p.Side == *m.WinningOutcome
}

// SettlementReport is the durable per-market settlement snapshot archived to
// object storage once a market resolves. It records the final pool state and
// every position's entitlement so settlement can be audited offline.
type SettlementReport struct {
	Market      Market           `json:"market"`
	Outcome     Outcome          `json:"outcome"`
	TotalPool   uint64           `json:"totalPool"`
	WinningPool uint64           `json:"winningPool"`
	FeeTaken    uint64           `json:"feeTaken"`
	Anomalous   bool             `json:"anomalous"` // winning pool was empty
	Positions   []ReportPosition `json:"positions"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// ReportPosition is one position's line in a settlement report.
type ReportPosition struct {
	PositionID string  `json:"positionId"`
	Bettor     string  `json:"bettor"`
	Side       Outcome `json:"side"`
	Amount     uint64  `json:"amount"`
	Won        bool    `json:"won"`
	GrossShare uint64  `json:"grossShare"`
	Fee        uint64  `json:"fee"`
	NetPayout  uint64  `json:"netPayout"`
}
