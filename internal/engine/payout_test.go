package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

func resolvedMarket(yes, no uint64, outcome domain.Outcome, feeBps uint16) domain.Market {
	m := testMarket()
	m.YesPool, m.NoPool = yes, no
	m.Params.PlatformFeeBps = feeBps
	m.Status = domain.MarketStatusResolved
	m.WinningOutcome = &outcome
	resolvedAt := m.EndTime.Add(time.Minute)
	m.ResolvedAt = &resolvedAt
	return m
}

func positionOn(m domain.Market, side domain.Outcome, amount uint64) domain.Position {
	return domain.Position{
		ID:       "pos-1",
		MarketID: m.ID,
		Bettor:   "bob",
		Side:     side,
		Amount:   amount,
	}
}

// yesPool=150, noPool=75, fee 250 bps, yes wins. A 30 stake on yes takes
// gross 225*30/150 = 45, fee truncates 45*250/10000 = 1.125 -> 1, net 44.
func TestEntitleWinningShare(t *testing.T) {
	m := resolvedMarket(150, 75, domain.OutcomeYes, 250)
	p := positionOn(m, domain.OutcomeYes, 30)

	ent, err := Entitle(m, p, m.ClaimsOpenAt())
	require.NoError(t, err)
	assert.True(t, ent.Won)
	assert.Equal(t, uint64(45), ent.GrossShare)
	assert.Equal(t, uint64(1), ent.Fee)
	assert.Equal(t, uint64(44), ent.NetPayout)
}

func TestEntitleLosingSideGetsZero(t *testing.T) {
	m := resolvedMarket(150, 75, domain.OutcomeYes, 250)
	p := positionOn(m, domain.OutcomeNo, 30)

	ent, err := Entitle(m, p, m.ClaimsOpenAt())
	require.NoError(t, err)
	assert.False(t, ent.Won)
	assert.Zero(t, ent.NetPayout)
}

func TestEntitleRejections(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unresolved market", func(t *testing.T) {
		m := testMarket()
		m.YesPool = 100
		_, err := Entitle(m, positionOn(m, domain.OutcomeYes, 10), now)
		assert.ErrorIs(t, err, domain.ErrNotYetClosed)
	})

	t.Run("already claimed", func(t *testing.T) {
		m := resolvedMarket(150, 75, domain.OutcomeYes, 250)
		p := positionOn(m, domain.OutcomeYes, 30)
		p.Claimed = true
		_, err := Entitle(m, p, now)
		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	})

	t.Run("foreign position", func(t *testing.T) {
		m := resolvedMarket(150, 75, domain.OutcomeYes, 250)
		p := positionOn(m, domain.OutcomeYes, 30)
		p.MarketID = "some-other-market"
		_, err := Entitle(m, p, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("cancelled market", func(t *testing.T) {
		m := testMarket()
		m.Status = domain.MarketStatusCancelled
		_, err := Entitle(m, positionOn(m, domain.OutcomeYes, 10), now)
		assert.ErrorIs(t, err, domain.ErrMarketCancelled)
	})
}

func TestEntitleHonoursResolutionDelay(t *testing.T) {
	m := resolvedMarket(150, 75, domain.OutcomeYes, 250)
	m.Params.ResolutionDelay = 3600
	p := positionOn(m, domain.OutcomeYes, 30)

	_, err := Entitle(m, p, m.ResolvedAt.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrClaimsNotOpen)

	ent, err := Entitle(m, p, m.ResolvedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(44), ent.NetPayout)
}

// Outcome resolved against an empty pool: nobody paid, platform retains all,
// market flagged anomalous.
func TestEntitleEmptyWinningPool(t *testing.T) {
	m := resolvedMarket(0, 75, domain.OutcomeYes, 250)
	p := positionOn(m, domain.OutcomeYes, 0) // hypothetical; no yes positions exist
	p.Amount = 0

	ent, err := Entitle(m, p, m.ClaimsOpenAt())
	require.NoError(t, err)
	assert.True(t, ent.Anomalous)
	assert.Zero(t, ent.NetPayout)

	// Losing-side positions are unaffected by the anomaly: zero as usual.
	lose := positionOn(m, domain.OutcomeNo, 75)
	ent, err = Entitle(m, lose, m.ClaimsOpenAt())
	require.NoError(t, err)
	assert.False(t, ent.Won)
	assert.Zero(t, ent.NetPayout)
}

func TestEntitleOverflow(t *testing.T) {
	// amount * totalPool overflows far past 128/64 division headroom:
	// quotient would exceed uint64 because hi >= winningPool.
	m := resolvedMarket(1, 1<<63, domain.OutcomeYes, 0)
	p := positionOn(m, domain.OutcomeYes, 1<<40)
	p.Amount = 1 << 40

	_, err := Entitle(m, p, m.ClaimsOpenAt())
	assert.ErrorIs(t, err, domain.ErrCalculationOverflow)
}

// Sum of net payouts over all winning positions never exceeds
// totalPool - totalPool*fee/10000, with equality when division is exact.
func TestFeeConservationBound(t *testing.T) {
	cases := []struct {
		name   string
		yes    []uint64
		no     []uint64
		feeBps uint16
	}{
		{"exact division", []uint64{50, 100, 150}, []uint64{300}, 500},
		{"truncating division", []uint64{33, 67, 11}, []uint64{13, 29}, 250},
		{"no fee", []uint64{10, 20}, []uint64{30}, 0},
		{"max fee", []uint64{10, 20}, []uint64{30}, 10000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testMarket()
			m.Params.PlatformFeeBps = tc.feeBps
			m.Params.MinBet = 1
			now := m.EndTime.Add(-time.Hour)

			var positions []domain.Position
			for _, a := range tc.yes {
				p, err := ApplyBet(&m, domain.OutcomeYes, "y", a, now)
				require.NoError(t, err)
				positions = append(positions, p)
			}
			for _, a := range tc.no {
				p, err := ApplyBet(&m, domain.OutcomeNo, "n", a, now)
				require.NoError(t, err)
				positions = append(positions, p)
			}

			total := m.TotalPool()
			require.NoError(t, Resolve(&m, domain.OutcomeYes, "oracle", m.EndTime))

			var paid uint64
			for _, p := range positions {
				ent, err := Entitle(m, p, m.ClaimsOpenAt())
				require.NoError(t, err)
				paid += ent.NetPayout
			}

			bound := total - mulBps(total, uint64(tc.feeBps))
			assert.LessOrEqual(t, paid, bound)
		})
	}
}

func TestBuildReport(t *testing.T) {
	m := testMarket()
	m.Params.MinBet = 1
	now := m.EndTime.Add(-time.Hour)

	p1, err := ApplyBet(&m, domain.OutcomeYes, "bob", 150, now)
	require.NoError(t, err)
	p2, err := ApplyBet(&m, domain.OutcomeNo, "carol", 75, now)
	require.NoError(t, err)
	require.NoError(t, Resolve(&m, domain.OutcomeYes, "oracle", m.EndTime))

	report := BuildReport(m, []domain.Position{p1, p2}, m.EndTime.Add(time.Hour))

	assert.Equal(t, domain.OutcomeYes, report.Outcome)
	assert.Equal(t, uint64(225), report.TotalPool)
	assert.Equal(t, uint64(150), report.WinningPool)
	assert.False(t, report.Anomalous)
	require.Len(t, report.Positions, 2)

	winner := report.Positions[0]
	assert.True(t, winner.Won)
	assert.Equal(t, uint64(225), winner.GrossShare) // 150*225/150
	assert.Equal(t, uint64(5), winner.Fee)          // 225*250/10000 = 5.625
	assert.Equal(t, uint64(220), winner.NetPayout)
	assert.Equal(t, uint64(5), report.FeeTaken)

	loser := report.Positions[1]
	assert.False(t, loser.Won)
	assert.Zero(t, loser.NetPayout)
}
