package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

func TestCloseIfDue(t *testing.T) {
	m := testMarket()

	// Before the deadline nothing happens.
	assert.False(t, CloseIfDue(&m, m.EndTime.Add(-time.Second)))
	assert.Equal(t, domain.MarketStatusOpen, m.Status)

	// At the deadline the market closes.
	assert.True(t, CloseIfDue(&m, m.EndTime))
	assert.Equal(t, domain.MarketStatusClosed, m.Status)

	// Idempotent.
	assert.False(t, CloseIfDue(&m, m.EndTime.Add(time.Hour)))
	assert.Equal(t, domain.MarketStatusClosed, m.Status)
}

func TestResolveWhileStillOpen(t *testing.T) {
	m := testMarket()
	before := m.EndTime.Add(-time.Hour)

	err := Resolve(&m, domain.OutcomeYes, "oracle", before)
	assert.ErrorIs(t, err, domain.ErrNotYetClosed)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Nil(t, m.WinningOutcome)
}

func TestResolveLazilyClosesAtDeadline(t *testing.T) {
	// An open market past its deadline resolves in one call: the deadline
	// check performs the open -> closed transition first.
	m := testMarket()
	after := m.EndTime.Add(time.Minute)

	require.NoError(t, Resolve(&m, domain.OutcomeNo, "oracle", after))
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	require.NotNil(t, m.WinningOutcome)
	assert.Equal(t, domain.OutcomeNo, *m.WinningOutcome)
	require.NotNil(t, m.ResolvedAt)
	assert.Equal(t, after, *m.ResolvedAt)
}

func TestResolveExactlyOnce(t *testing.T) {
	m := testMarket()
	after := m.EndTime.Add(time.Minute)

	require.NoError(t, Resolve(&m, domain.OutcomeYes, "oracle", after))

	// The outcome never changes, whatever the second caller asks for.
	err := Resolve(&m, domain.OutcomeNo, "oracle", after.Add(time.Second))
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Equal(t, domain.OutcomeYes, *m.WinningOutcome)
}

func TestResolveRejectsWrongAuthority(t *testing.T) {
	m := testMarket()
	after := m.EndTime.Add(time.Minute)

	err := Resolve(&m, domain.OutcomeYes, "mallory", after)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
}

func TestResolveRejectsBadOutcome(t *testing.T) {
	m := testMarket()
	err := Resolve(&m, domain.Outcome("draw"), "oracle", m.EndTime.Add(time.Minute))
	assert.Error(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
}

func TestCancel(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("open market with no bets", func(t *testing.T) {
		m := testMarket()
		require.NoError(t, Cancel(&m, "oracle", now))
		assert.Equal(t, domain.MarketStatusCancelled, m.Status)
	})

	t.Run("rejected once a bet exists", func(t *testing.T) {
		m := testMarket()
		_, err := ApplyBet(&m, domain.OutcomeYes, "bob", 100, now)
		require.NoError(t, err)
		assert.ErrorIs(t, Cancel(&m, "oracle", now), domain.ErrBetsAlreadyPlaced)
		assert.Equal(t, domain.MarketStatusOpen, m.Status)
	})

	t.Run("wrong authority", func(t *testing.T) {
		m := testMarket()
		assert.ErrorIs(t, Cancel(&m, "mallory", now), domain.ErrUnauthorized)
	})

	t.Run("cancelled market takes no bets", func(t *testing.T) {
		m := testMarket()
		require.NoError(t, Cancel(&m, "oracle", now))
		_, err := ApplyBet(&m, domain.OutcomeYes, "bob", 100, now)
		assert.ErrorIs(t, err, domain.ErrMarketCancelled)
	})

	t.Run("cancelled market never resolves", func(t *testing.T) {
		m := testMarket()
		require.NoError(t, Cancel(&m, "oracle", now))
		err := Resolve(&m, domain.OutcomeYes, "oracle", m.EndTime.Add(time.Minute))
		assert.ErrorIs(t, err, domain.ErrMarketCancelled)
	})
}
