package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/engine"
)

// BetService accepts bets and records the resulting positions. Pool updates
// go through the store's guarded increment, so two bettors racing on the
// same market both land and the pool ends up with exactly the sum of their
// stakes.
type BetService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	cache     domain.MarketCache
	prices    domain.PriceCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger

	now func() time.Time
}

// NewBetService creates a BetService with all required dependencies.
func NewBetService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	cache domain.MarketCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		markets:   markets,
		positions: positions,
		cache:     cache,
		prices:    prices,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBet stakes amount on one side of a market. It returns the recorded
// position and the market state after the pool update.
//
// Validation runs twice: once against a snapshot for fast rejection with a
// precise error, and again inside the store's conditional update, which is
// the authoritative gate against bets landing on a closed market.
func (s *BetService) PlaceBet(ctx context.Context, marketID, bettor string, side domain.Outcome, amount uint64) (domain.Position, domain.Market, error) {
	if bettor == "" {
		return domain.Position{}, domain.Market{}, fmt.Errorf("bet_service: empty bettor: %w", domain.ErrUnauthorized)
	}

	now := s.now()

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Position{}, domain.Market{}, fmt.Errorf("bet_service: get market %q: %w", marketID, err)
	}

	if engine.CloseIfDue(&m, now) {
		if closeErr := s.markets.MarkClosed(ctx, marketID, now); closeErr != nil {
			s.logger.WarnContext(ctx, "bet_service: lazy close failed",
				slog.String("market_id", marketID),
				slog.String("error", closeErr.Error()),
			)
		}
	}

	if err := engine.ValidateBet(m, side, amount, now); err != nil {
		return domain.Position{}, domain.Market{}, fmt.Errorf("bet_service: validate bet on %q: %w", marketID, err)
	}

	updated, err := s.markets.AddToPool(ctx, marketID, side, amount, now)
	if err != nil {
		return domain.Position{}, domain.Market{}, fmt.Errorf("bet_service: add to pool %q: %w", marketID, err)
	}

	pos := domain.Position{
		ID:       uuid.New().String(),
		MarketID: marketID,
		Bettor:   bettor,
		Side:     side,
		Amount:   amount,
		PlacedAt: now,
	}
	if err := s.positions.Create(ctx, pos); err != nil {
		// The pool already moved; surface the failure loudly so the audit
		// trail shows why SumByMarket will disagree with the pool totals.
		s.logger.ErrorContext(ctx, "bet_service: position create failed after pool update",
			slog.String("market_id", marketID),
			slog.String("bettor", bettor),
			slog.Uint64("amount", amount),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, domain.Market{}, fmt.Errorf("bet_service: create position: %w", err)
	}

	s.refreshPrices(ctx, updated, now)

	if cacheErr := s.cache.Set(ctx, updated); cacheErr != nil {
		s.logger.WarnContext(ctx, "bet_service: cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", cacheErr.Error()),
		)
	}

	if err := s.audit.Log(ctx, "bet.place", map[string]any{
		"market_id":   marketID,
		"position_id": pos.ID,
		"bettor":      bettor,
		"side":        string(side),
		"amount":      amount,
	}); err != nil {
		s.logger.WarnContext(ctx, "bet_service: audit log failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bet_service: bet placed",
		slog.String("market_id", marketID),
		slog.String("position_id", pos.ID),
		slog.String("side", string(side)),
		slog.Uint64("amount", amount),
	)

	return pos, updated, nil
}

// PotentialPayout quotes the gross payout a hypothetical bet would receive
// if its side won at the current pool state. Advisory only.
func (s *BetService) PotentialPayout(ctx context.Context, marketID string, side domain.Outcome, amount uint64) (uint64, error) {
	if !side.Valid() || amount == 0 {
		return 0, fmt.Errorf("bet_service: bad quote input: %w", domain.ErrInvalidAmount)
	}
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("bet_service: get market %q: %w", marketID, err)
	}
	return engine.PotentialPayout(m, side, amount), nil
}

// ListByMarket returns the positions recorded against a market, oldest
// first.
func (s *BetService) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list by market %q: %w", marketID, err)
	}
	return positions, nil
}

// ListByBettor returns one bettor's positions across all markets, newest
// first.
func (s *BetService) ListByBettor(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.positions.ListByBettor(ctx, bettor, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list by bettor %q: %w", bettor, err)
	}
	return positions, nil
}

// refreshPrices pushes the post-bet implied prices into the price cache and
// publishes a price update event. Both are best-effort.
func (s *BetService) refreshPrices(ctx context.Context, m domain.Market, now time.Time) {
	yes := engine.Price(m, domain.OutcomeYes)
	no := engine.Price(m, domain.OutcomeNo)

	if err := s.prices.SetPrices(ctx, m.ID, yes, no, now); err != nil {
		s.logger.WarnContext(ctx, "bet_service: price cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"market_id": m.ID,
		"yes_price": yes,
		"no_price":  no,
		"yes_pool":  m.YesPool,
		"no_pool":   m.NoPool,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, domain.ChannelPrices, evt); err != nil {
		s.logger.WarnContext(ctx, "bet_service: publish price update failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
