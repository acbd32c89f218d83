package notify

import (
	"context"
	"fmt"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// Event types recognized by the notifier filter.
const (
	EventMarketResolved  = "market_resolved"
	EventMarketCancelled = "market_cancelled"
	EventAnomalous       = "anomalous_settlement"
	EventSweepFailure    = "sweep_failure"
)

// MarketResolved announces that a market settled, including the final pools
// and the total fee retained by the platform.
func (n *Notifier) MarketResolved(ctx context.Context, report domain.SettlementReport) error {
	m := report.Market
	title := fmt.Sprintf("Market resolved: %s", m.Question)
	message := fmt.Sprintf(
		"Market %s resolved %s.\nYes pool: %d\nNo pool: %d\nPositions: %d\nFee taken: %d",
		m.ID, report.Outcome, m.YesPool, m.NoPool, len(report.Positions), report.FeeTaken,
	)

	if report.Anomalous {
		// An empty winning pool means every payout is zero and the platform
		// keeps the full pool. Operators should review these manually.
		if err := n.Notify(ctx, EventAnomalous,
			fmt.Sprintf("Anomalous settlement: %s", m.ID),
			fmt.Sprintf("Market %s resolved %s with an empty winning pool. Total pool %d retained.",
				m.ID, report.Outcome, report.TotalPool),
		); err != nil {
			return err
		}
	}

	return n.Notify(ctx, EventMarketResolved, title, message)
}

// MarketCancelled announces that an unstarted market was cancelled by its
// authority.
func (n *Notifier) MarketCancelled(ctx context.Context, m domain.Market) error {
	return n.Notify(ctx, EventMarketCancelled,
		fmt.Sprintf("Market cancelled: %s", m.ID),
		fmt.Sprintf("Market %s (%q) was cancelled before any bets were placed.", m.ID, m.Question),
	)
}

// SweepFailure reports a market the background sweeper could not close.
func (n *Notifier) SweepFailure(ctx context.Context, marketID string, err error) error {
	return n.Notify(ctx, EventSweepFailure,
		fmt.Sprintf("Sweep failure: %s", marketID),
		fmt.Sprintf("Background close of market %s failed: %v", marketID, err),
	)
}
