package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name    string
		yes, no uint64
		side    domain.Outcome
		want    float64
	}{
		{"empty market yes", 0, 0, domain.OutcomeYes, 0.5},
		{"empty market no", 0, 0, domain.OutcomeNo, 0.5},
		{"two to one", 150, 75, domain.OutcomeYes, 150.0 / 225.0},
		{"two to one other side", 150, 75, domain.OutcomeNo, 75.0 / 225.0},
		{"one sided yes", 100, 0, domain.OutcomeYes, 1.0},
		{"one sided no", 100, 0, domain.OutcomeNo, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMarket()
			m.YesPool, m.NoPool = tt.yes, tt.no
			assert.InDelta(t, tt.want, Price(m, tt.side), 1e-12)
		})
	}
}

func TestPricesSumToOne(t *testing.T) {
	m := testMarket()
	m.YesPool, m.NoPool = 123_456, 789_012
	sum := Price(m, domain.OutcomeYes) + Price(m, domain.OutcomeNo)
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestConsensusPriceBps(t *testing.T) {
	tests := []struct {
		name    string
		yes, no uint64
		want    uint64
	}{
		{"empty market even odds", 0, 0, 5000},
		{"all yes", 100, 0, 10000},
		{"all no", 0, 100, 0},
		{"two thirds yes", 150, 75, 6666}, // truncates
		{"huge pools", 1 << 62, 1 << 62, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMarket()
			m.YesPool, m.NoPool = tt.yes, tt.no
			assert.Equal(t, tt.want, ConsensusPriceBps(m))
		})
	}
}

// PotentialPayout prices the hypothetical bet as part of the pool it would
// join. It is an estimate; the realized payout at resolution may differ once
// later bets move the pools.
func TestPotentialPayout(t *testing.T) {
	m := testMarket()
	m.YesPool, m.NoPool = 100, 100

	// 100 on yes joins: total 300, yes pool 200 -> 100*300/200 = 150.
	assert.Equal(t, uint64(150), PotentialPayout(m, domain.OutcomeYes, 100))

	// First bet into an empty market can only win its own stake back.
	empty := testMarket()
	assert.Equal(t, uint64(50), PotentialPayout(empty, domain.OutcomeYes, 50))

	assert.Equal(t, uint64(0), PotentialPayout(m, domain.OutcomeYes, 0))
}

func TestSnapshot(t *testing.T) {
	m := testMarket()
	m.YesPool, m.NoPool, m.TotalBets = 150, 75, 3
	bps := uint64(6666)
	m.ConsensusPriceBps = &bps

	s := Snapshot(m)
	assert.Equal(t, m.ID, s.MarketID)
	assert.InDelta(t, 150.0/225.0, s.YesPrice, 1e-12)
	assert.Equal(t, uint64(150), s.YesPool)
	assert.Equal(t, uint64(75), s.NoPool)
	assert.Equal(t, uint64(3), s.TotalBets)
	assert.Equal(t, &bps, s.ConsensusPriceBps)
}
