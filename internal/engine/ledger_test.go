package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

func testMarket() domain.Market {
	return domain.Market{
		ID:        "mkt-1",
		Creator:   "alice",
		Authority: "oracle",
		Question:  "Will the proposal yield above 5%?",
		Status:    domain.MarketStatusOpen,
		Params: domain.MarketParams{
			MinBet:          10,
			MaxBet:          1_000_000,
			PlatformFeeBps:  250,
			ResolutionDelay: 0,
		},
		EndTime:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateBet(t *testing.T) {
	open := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 1, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*domain.Market)
		side    domain.Outcome
		amount  uint64
		now     time.Time
		wantErr error
	}{
		{"valid", nil, domain.OutcomeYes, 100, open, nil},
		{"zero amount", nil, domain.OutcomeYes, 0, open, domain.ErrInvalidAmount},
		{"below min", nil, domain.OutcomeYes, 9, open, domain.ErrBetOutOfRange},
		{"exactly min", nil, domain.OutcomeYes, 10, open, nil},
		{"exactly max", nil, domain.OutcomeNo, 1_000_000, open, nil},
		{"above max", nil, domain.OutcomeNo, 1_000_001, open, domain.ErrBetOutOfRange},
		{"after deadline", nil, domain.OutcomeYes, 100, late, domain.ErrMarketClosed},
		{"at deadline", nil, domain.OutcomeYes, 100,
			time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), domain.ErrMarketClosed},
		{"bad side", nil, domain.Outcome("maybe"), 100, open, domain.ErrInvalidAmount},
		{"closed market", func(m *domain.Market) { m.Status = domain.MarketStatusClosed },
			domain.OutcomeYes, 100, open, domain.ErrMarketClosed},
		{"resolved market", func(m *domain.Market) { m.Status = domain.MarketStatusResolved },
			domain.OutcomeYes, 100, open, domain.ErrMarketClosed},
		{"cancelled market", func(m *domain.Market) { m.Status = domain.MarketStatusCancelled },
			domain.OutcomeYes, 100, open, domain.ErrMarketCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMarket()
			if tt.mutate != nil {
				tt.mutate(&m)
			}
			err := ValidateBet(m, tt.side, tt.amount, tt.now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestApplyBetGrowsOnlyChosenPool(t *testing.T) {
	m := testMarket()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	pos, err := ApplyBet(&m, domain.OutcomeYes, "bob", 150, now)
	require.NoError(t, err)

	assert.Equal(t, uint64(150), m.YesPool)
	assert.Equal(t, uint64(0), m.NoPool)
	assert.Equal(t, uint64(1), m.TotalBets)
	assert.Equal(t, "bob", pos.Bettor)
	assert.Equal(t, domain.OutcomeYes, pos.Side)
	assert.Equal(t, uint64(150), pos.Amount)
	assert.False(t, pos.Claimed)

	_, err = ApplyBet(&m, domain.OutcomeNo, "carol", 75, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), m.YesPool)
	assert.Equal(t, uint64(75), m.NoPool)
	assert.Equal(t, uint64(225), m.TotalPool())
}

// The combined pool must equal the sum of all position amounts at every
// point, and a rejected bet must not touch the pools.
func TestPoolSumInvariant(t *testing.T) {
	m := testMarket()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var staked uint64
	amounts := []uint64{10, 25, 1_000_000, 10, 333, 42}
	for i, a := range amounts {
		side := domain.OutcomeYes
		if i%2 == 1 {
			side = domain.OutcomeNo
		}
		_, err := ApplyBet(&m, side, "bettor", a, now)
		require.NoError(t, err)
		staked += a
		assert.Equal(t, staked, m.TotalPool())
	}

	// Rejected bets leave the pools untouched.
	before := m
	_, err := ApplyBet(&m, domain.OutcomeYes, "bettor", 5, now)
	assert.ErrorIs(t, err, domain.ErrBetOutOfRange)
	assert.Equal(t, before.YesPool, m.YesPool)
	assert.Equal(t, before.NoPool, m.NoPool)
	assert.Equal(t, before.TotalBets, m.TotalBets)

	_, err = ApplyBet(&m, domain.OutcomeYes, "bettor", 100, m.EndTime)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	assert.Equal(t, before.YesPool, m.YesPool)
	assert.Equal(t, before.NoPool, m.NoPool)
}

func TestApplyBetUpdatesConsensusPrice(t *testing.T) {
	m := testMarket()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := ApplyBet(&m, domain.OutcomeYes, "bob", 150, now)
	require.NoError(t, err)
	require.NotNil(t, m.ConsensusPriceBps)
	assert.Equal(t, uint64(10000), *m.ConsensusPriceBps)

	_, err = ApplyBet(&m, domain.OutcomeNo, "carol", 50, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(7500), *m.ConsensusPriceBps)
}

func TestApplyBetRejectsPoolOverflow(t *testing.T) {
	m := testMarket()
	m.Params.MaxBet = ^uint64(0)
	m.YesPool = ^uint64(0) - 5
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := ApplyBet(&m, domain.OutcomeNo, "bob", 10, now)
	assert.ErrorIs(t, err, domain.ErrCalculationOverflow)
}
