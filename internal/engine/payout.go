package engine

import (
	"math/bits"
	"time"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// Entitlement is the computed claim value for one position on a resolved
// market. For a losing position every field is zero and Won is false; the
// claim still succeeds (with no transfer) so claims stay idempotent.
type Entitlement struct {
	Won        bool
	GrossShare uint64
	Fee        uint64
	NetPayout  uint64

	// Anomalous flags the degenerate case of a winning pool with zero
	// stake. Policy: the platform retains the entire pool and the market is
	// flagged for administrative review; no positions pay out.
	Anomalous bool
}

// Entitle computes what position p may claim from resolved market m at the
// given instant.
//
// All pool math is integer, in the smallest currency unit, ordered
// multiply-then-divide over a 128-bit intermediate so no precision is lost:
//
//	gross = amount * totalPool / winningPool
//	fee   = gross * platformFeeBps / 10000   (truncating)
//	net   = gross - fee
//
// ErrCalculationOverflow is returned if gross exceeds the 64-bit range.
func Entitle(m domain.Market, p domain.Position, now time.Time) (Entitlement, error) {
	if m.Status == domain.MarketStatusCancelled {
		return Entitlement{}, domain.ErrMarketCancelled
	}
	if m.Status != domain.MarketStatusResolved || m.WinningOutcome == nil {
		return Entitlement{}, domain.ErrNotYetClosed
	}
	if p.MarketID != m.ID {
		return Entitlement{}, domain.ErrNotFound
	}
	if p.Claimed {
		return Entitlement{}, domain.ErrAlreadyClaimed
	}
	if now.Before(m.ClaimsOpenAt()) {
		return Entitlement{}, domain.ErrClaimsNotOpen
	}

	if p.Side != *m.WinningOutcome {
		return Entitlement{}, nil
	}

	winningPool := m.Pool(*m.WinningOutcome)
	if winningPool == 0 {
		// Nobody backed the winning side yet it won anyway. Undefined by
		// the pricing model; fixed policy is platform-retains-all.
		return Entitlement{Anomalous: true}, nil
	}

	totalPool := m.TotalPool()

	hi, lo := bits.Mul64(p.Amount, totalPool)
	if hi >= winningPool {
		return Entitlement{}, domain.ErrCalculationOverflow
	}
	gross, _ := bits.Div64(hi, lo, winningPool)

	fee := mulBps(gross, uint64(m.Params.PlatformFeeBps))

	return Entitlement{
		Won:        true,
		GrossShare: gross,
		Fee:        fee,
		NetPayout:  gross - fee,
	}, nil
}

// mulBps computes v * bps / 10000 with a 128-bit intermediate. Safe for any
// v when bps <= 10000.
func mulBps(v, bps uint64) uint64 {
	hi, lo := bits.Mul64(v, bps)
	if hi >= domain.FeeDenominator {
		return v // unreachable for bps <= 10000; clamp anyway
	}
	q, _ := bits.Div64(hi, lo, domain.FeeDenominator)
	return q
}

// BuildReport assembles the durable settlement report for a resolved market
// from its full position set. Entitlements in the report are computed as of
// the claims-open instant so the resolution delay never hides lines.
func BuildReport(m domain.Market, positions []domain.Position, now time.Time) domain.SettlementReport {
	outcome := domain.OutcomeYes
	if m.WinningOutcome != nil {
		outcome = *m.WinningOutcome
	}
	winningPool := m.Pool(outcome)

	report := domain.SettlementReport{
		Market:      m,
		Outcome:     outcome,
		TotalPool:   m.TotalPool(),
		WinningPool: winningPool,
		Anomalous:   winningPool == 0 && m.TotalPool() > 0,
		GeneratedAt: now,
	}

	at := m.ClaimsOpenAt()
	if at.IsZero() || now.After(at) {
		at = now
	}

	for _, p := range positions {
		line := domain.ReportPosition{
			PositionID: p.ID,
			Bettor:     p.Bettor,
			Side:       p.Side,
			Amount:     p.Amount,
		}
		// Report lines are computed fresh even for claimed positions.
		p.Claimed = false
		ent, err := Entitle(m, p, at)
		if err == nil && ent.Won {
			line.Won = true
			line.GrossShare = ent.GrossShare
			line.Fee = ent.Fee
			line.NetPayout = ent.NetPayout
			report.FeeTaken += ent.Fee
		}
		report.Positions = append(report.Positions, line)
	}
	return report
}
