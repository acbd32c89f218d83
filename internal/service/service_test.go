package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/store/memory"
)

// fixture wires the three services against in-memory infrastructure with a
// test-controlled clock.
type fixture struct {
	markets   *memory.MarketStore
	positions *memory.PositionStore
	cache     *memory.MarketCache
	prices    *memory.PriceCache
	bus       *memory.SignalBus
	audit     *memory.AuditStore
	locks     *memory.LockManager

	market *MarketService
	bets   *BetService
	settle *SettlementService

	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		markets:   memory.NewMarketStore(),
		positions: memory.NewPositionStore(),
		cache:     memory.NewMarketCache(),
		prices:    memory.NewPriceCache(),
		bus:       memory.NewSignalBus(),
		audit:     memory.NewAuditStore(),
		locks:     memory.NewLockManager(),
		clock:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return f.clock }

	f.market = NewMarketService(f.markets, f.cache, f.bus, f.audit, nil, logger)
	f.market.now = now
	f.bets = NewBetService(f.markets, f.positions, f.cache, f.prices, f.bus, f.audit, logger)
	f.bets.now = now
	f.settle = NewSettlementService(f.markets, f.positions, f.cache, f.locks, f.bus, f.audit, nil, nil, logger)
	f.settle.now = now

	return f
}

func (f *fixture) openMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := f.market.Create(context.Background(), CreateMarketInput{
		Creator:   "alice",
		Question:  "Will it rain in Lisbon tomorrow?",
		Category:  "weather",
		Authority: "oracle",
		EndTime:   f.clock.Add(time.Hour),
		Params: domain.MarketParams{
			MinBet:          10,
			MaxBet:          1_000_000,
			PlatformFeeBps:  250,
			ResolutionDelay: 0,
		},
	})
	require.NoError(t, err)
	return m
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := CreateMarketInput{
		Creator:  "alice",
		Question: "Will it rain?",
		EndTime:  f.clock.Add(time.Hour),
		Params:   domain.MarketParams{MinBet: 10, MaxBet: 100, PlatformFeeBps: 100},
	}

	tests := []struct {
		name   string
		mutate func(*CreateMarketInput)
		want   error
	}{
		{"empty question", func(in *CreateMarketInput) { in.Question = "  " }, domain.ErrInvalidAmount},
		{"empty creator", func(in *CreateMarketInput) { in.Creator = "" }, domain.ErrUnauthorized},
		{"end time in the past", func(in *CreateMarketInput) { in.EndTime = f.clock.Add(-time.Minute) }, domain.ErrMarketClosed},
		{"end time equals now", func(in *CreateMarketInput) { in.EndTime = f.clock }, domain.ErrMarketClosed},
		{"fee above denominator", func(in *CreateMarketInput) { in.Params.PlatformFeeBps = 10_001 }, domain.ErrInvalidAmount},
		{"zero min bet", func(in *CreateMarketInput) { in.Params.MinBet = 0 }, domain.ErrBetOutOfRange},
		{"min above max", func(in *CreateMarketInput) { in.Params.MinBet = 200 }, domain.ErrBetOutOfRange},
		{"negative resolution delay", func(in *CreateMarketInput) { in.Params.ResolutionDelay = -1 }, domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := f.market.Create(ctx, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	m, err := f.market.Create(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Equal(t, "alice", m.Authority, "authority defaults to creator")
}

func TestPlaceBetUpdatesPoolsAndPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	pos, updated, err := f.bets.PlaceBet(ctx, m.ID, "bob", domain.OutcomeYes, 30)
	require.NoError(t, err)

	assert.Equal(t, uint64(30), updated.YesPool)
	assert.Equal(t, uint64(0), updated.NoPool)
	assert.Equal(t, uint64(1), updated.TotalBets)
	assert.Equal(t, m.ID, pos.MarketID)
	assert.Equal(t, "bob", pos.Bettor)

	stored, err := f.positions.GetByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), stored.Amount)
	assert.False(t, stored.Claimed)

	yes, no, _, err := f.prices.GetPrices(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, yes)
	assert.Equal(t, 0.0, no)
}

func TestPlaceBetAfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, _, err := f.bets.PlaceBet(ctx, m.ID, "bob", domain.OutcomeYes, 50)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)

	_, _, err = f.bets.PlaceBet(ctx, m.ID, "carol", domain.OutcomeNo, 50)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	// The rejected bet must not have touched the pools, and the lookup path
	// reports the market as closed now that the deadline has passed.
	got, err := f.market.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, got.Status)
	assert.Equal(t, uint64(50), got.YesPool)
	assert.Equal(t, uint64(0), got.NoPool)
}

func TestConcurrentBetsPoolSum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	amounts := []uint64{10, 20, 30, 40, 50, 60, 70, 80}
	var wg sync.WaitGroup
	errs := make([]error, len(amounts))
	for i, amt := range amounts {
		wg.Add(1)
		go func(i int, amt uint64) {
			defer wg.Done()
			side := domain.OutcomeYes
			if i%2 == 1 {
				side = domain.OutcomeNo
			}
			_, _, errs[i] = f.bets.PlaceBet(ctx, m.ID, "bettor", side, amt)
		}(i, amt)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "bet %d", i)
	}

	got, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10+30+50+70), got.YesPool)
	assert.Equal(t, uint64(20+40+60+80), got.NoPool)
	assert.Equal(t, uint64(len(amounts)), got.TotalBets)

	// The recorded positions must account for every unit in the pools.
	yes, no, err := f.positions.SumByMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, got.YesPool, yes)
	assert.Equal(t, got.NoPool, no)
}

func TestResolveAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	// yesPool 150 (120 + 30), noPool 75.
	_, _, err := f.bets.PlaceBet(ctx, m.ID, "alice", domain.OutcomeYes, 120)
	require.NoError(t, err)
	winner, _, err := f.bets.PlaceBet(ctx, m.ID, "carol", domain.OutcomeYes, 30)
	require.NoError(t, err)
	loser, _, err := f.bets.PlaceBet(ctx, m.ID, "bob", domain.OutcomeNo, 75)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)

	report, err := f.settle.Resolve(ctx, m.ID, domain.OutcomeYes, "oracle")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, report.Outcome)
	assert.Equal(t, uint64(225), report.TotalPool)
	assert.Equal(t, uint64(150), report.WinningPool)
	assert.False(t, report.Anomalous)
	assert.Len(t, report.Positions, 3)

	// 30 * 225 / 150 = 45 gross, 45 * 250 / 10000 = 1 fee, 44 net.
	ent, err := f.settle.Claim(ctx, winner.ID, "carol")
	require.NoError(t, err)
	assert.True(t, ent.Won)
	assert.Equal(t, uint64(45), ent.GrossShare)
	assert.Equal(t, uint64(1), ent.Fee)
	assert.Equal(t, uint64(44), ent.NetPayout)

	// Claiming again must fail, and the stored payout must be unchanged.
	_, err = f.settle.Claim(ctx, winner.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	stored, err := f.positions.GetByID(ctx, winner.ID)
	require.NoError(t, err)
	assert.True(t, stored.Claimed)
	assert.Equal(t, uint64(44), stored.Payout)

	// A losing position claims successfully with a zero payout.
	lost, err := f.settle.Claim(ctx, loser.ID, "bob")
	require.NoError(t, err)
	assert.False(t, lost.Won)
	assert.Equal(t, uint64(0), lost.NetPayout)
	_, err = f.settle.Claim(ctx, loser.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestResolveGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	// Before the deadline nobody can resolve, not even the authority.
	_, err := f.settle.Resolve(ctx, m.ID, domain.OutcomeYes, "oracle")
	assert.ErrorIs(t, err, domain.ErrNotYetClosed)

	f.clock = f.clock.Add(2 * time.Hour)

	_, err = f.settle.Resolve(ctx, m.ID, domain.OutcomeYes, "mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.settle.Resolve(ctx, m.ID, domain.OutcomeYes, "oracle")
	require.NoError(t, err)

	// Exactly once: a second resolution attempt fails even with the right
	// authority and the opposite outcome.
	_, err = f.settle.Resolve(ctx, m.ID, domain.OutcomeNo, "oracle")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	got, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WinningOutcome)
	assert.Equal(t, domain.OutcomeYes, *got.WinningOutcome)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty := f.openMarket(t)
	_, err := f.market.Cancel(ctx, empty.ID, "oracle")
	require.NoError(t, err)
	got, err := f.markets.GetByID(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusCancelled, got.Status)

	// Cancellation is final: no bets land afterwards.
	_, _, err = f.bets.PlaceBet(ctx, empty.ID, "bob", domain.OutcomeYes, 10)
	assert.Error(t, err)

	active := f.openMarket(t)
	_, _, err = f.bets.PlaceBet(ctx, active.ID, "bob", domain.OutcomeYes, 10)
	require.NoError(t, err)
	_, err = f.market.Cancel(ctx, active.ID, "oracle")
	assert.ErrorIs(t, err, domain.ErrBetsAlreadyPlaced)

	_, err = f.market.Cancel(ctx, active.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSweepDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due1 := f.openMarket(t)
	due2 := f.openMarket(t)

	// A market with a later deadline stays open through the sweep.
	later, err := f.market.Create(ctx, CreateMarketInput{
		Creator:  "alice",
		Question: "Will the late market stay open?",
		EndTime:  f.clock.Add(48 * time.Hour),
		Params:   domain.MarketParams{MinBet: 10, MaxBet: 100, PlatformFeeBps: 100},
	})
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)

	closed, err := f.settle.SweepDue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	for _, id := range []string{due1.ID, due2.ID} {
		got, err := f.markets.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.MarketStatusClosed, got.Status)
	}
	got, err := f.markets.GetByID(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, got.Status)

	// Idempotent: a second sweep finds nothing left to close.
	closed, err = f.settle.SweepDue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestClaimHonoursResolutionDelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.market.Create(ctx, CreateMarketInput{
		Creator:   "alice",
		Question:  "Will claims wait out the dispute window?",
		Authority: "oracle",
		EndTime:   f.clock.Add(time.Hour),
		Params: domain.MarketParams{
			MinBet:          10,
			MaxBet:          1_000_000,
			PlatformFeeBps:  250,
			ResolutionDelay: 3600,
		},
	})
	require.NoError(t, err)

	pos, _, err := f.bets.PlaceBet(ctx, m.ID, "carol", domain.OutcomeYes, 100)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)
	_, err = f.settle.Resolve(ctx, m.ID, domain.OutcomeYes, "oracle")
	require.NoError(t, err)

	_, err = f.settle.Claim(ctx, pos.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrClaimsNotOpen)

	f.clock = f.clock.Add(2 * time.Hour)
	ent, err := f.settle.Claim(ctx, pos.ID, "carol")
	require.NoError(t, err)
	assert.True(t, ent.Won)
}

func TestClaimOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	pos, _, err := f.bets.PlaceBet(ctx, m.ID, "carol", domain.OutcomeYes, 100)
	require.NoError(t, err)

	f.clock = f.clock.Add(2 * time.Hour)
	_, err = f.settle.Resolve(ctx, m.ID, domain.OutcomeYes, "oracle")
	require.NoError(t, err)

	_, err = f.settle.Claim(ctx, pos.ID, "mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	stored, err := f.positions.GetByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, stored.Claimed)
}

func TestSentiment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.openMarket(t)

	_, _, err := f.bets.PlaceBet(ctx, m.ID, "alice", domain.OutcomeYes, 150)
	require.NoError(t, err)
	_, _, err = f.bets.PlaceBet(ctx, m.ID, "bob", domain.OutcomeNo, 50)
	require.NoError(t, err)

	sent, err := f.market.Sentiment(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.75, sent.YesPrice)
	assert.Equal(t, 0.25, sent.NoPrice)
}
