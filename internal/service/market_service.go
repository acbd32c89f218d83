package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/engine"
	"github.com/aethernaut-labs/marketd/internal/notify"
)

// CreateMarketInput carries everything needed to open a new binary market.
type CreateMarketInput struct {
	Creator   string
	Question  string
	Category  string
	Authority string // defaults to Creator when empty
	EndTime   time.Time
	Params    domain.MarketParams
}

// MarketService handles the market lifecycle outside of betting and
// settlement: creation, lookup with lazy closing, listing, sentiment, and
// cancellation.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger

	now func() time.Time
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the input, opens a new market with empty pools, and
// persists it. The market starts accepting bets immediately.
func (s *MarketService) Create(ctx context.Context, in CreateMarketInput) (domain.Market, error) {
	now := s.now()

	if strings.TrimSpace(in.Question) == "" {
		return domain.Market{}, fmt.Errorf("market_service: empty question: %w", domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(in.Creator) == "" {
		return domain.Market{}, fmt.Errorf("market_service: empty creator: %w", domain.ErrUnauthorized)
	}
	if !in.EndTime.After(now) {
		return domain.Market{}, fmt.Errorf("market_service: end time %s not in the future: %w",
			in.EndTime.Format(time.RFC3339), domain.ErrMarketClosed)
	}
	if in.Params.PlatformFeeBps > domain.FeeDenominator {
		return domain.Market{}, fmt.Errorf("market_service: fee %d bps exceeds %d: %w",
			in.Params.PlatformFeeBps, domain.FeeDenominator, domain.ErrInvalidAmount)
	}
	if in.Params.MinBet == 0 || in.Params.MaxBet < in.Params.MinBet {
		return domain.Market{}, fmt.Errorf("market_service: bad bet bounds [%d, %d]: %w",
			in.Params.MinBet, in.Params.MaxBet, domain.ErrBetOutOfRange)
	}
	if in.Params.ResolutionDelay < 0 {
		return domain.Market{}, fmt.Errorf("market_service: negative resolution delay: %w", domain.ErrInvalidAmount)
	}

	authority := in.Authority
	if authority == "" {
		authority = in.Creator
	}

	m := domain.Market{
		ID:        uuid.New().String(),
		Creator:   in.Creator,
		Question:  strings.TrimSpace(in.Question),
		Category:  strings.TrimSpace(in.Category),
		Authority: authority,
		Params:    in.Params,
		EndTime:   in.EndTime.UTC(),
		Status:    domain.MarketStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishMarketEvent(ctx, "market_created", m)

	if err := s.audit.Log(ctx, "market.create", map[string]any{
		"market_id": m.ID,
		"creator":   m.Creator,
		"question":  m.Question,
		"end_time":  m.EndTime.Format(time.RFC3339),
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("creator", m.Creator),
	)

	return m, nil
}

// Get retrieves a market by ID, checking the cache first and falling back to
// the persistent store on a miss. A market whose deadline has passed is
// closed on the way out, so callers always observe closed status at or after
// the deadline even if no sweep has run.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err != nil {
		// Cache miss or error -- fall through to store.
		m, err = s.markets.GetByID(ctx, id)
		if err != nil {
			return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
		}
	}

	now := s.now()
	if engine.CloseIfDue(&m, now) {
		if err := s.markets.MarkClosed(ctx, id, now); err != nil {
			return domain.Market{}, fmt.Errorf("market_service: close due market %q: %w", id, err)
		}
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// List returns markets filtered by status directly from the persistent
// store. An empty status returns markets in every state.
func (s *MarketService) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the persistent store.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// Sentiment returns the current crowd-implied view of a market.
func (s *MarketService) Sentiment(ctx context.Context, id string) (domain.Sentiment, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return domain.Sentiment{}, err
	}
	return engine.Snapshot(m), nil
}

// Cancel voids a market that never attracted a bet. Only the market's
// authority may cancel, and only while the market is open with zero bets.
func (s *MarketService) Cancel(ctx context.Context, id, authority string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %q: %w", id, err)
	}

	now := s.now()
	if err := engine.Cancel(&m, authority, now); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: cancel %q: %w", id, err)
	}

	// The store guard re-checks status and bet count, so a bet that raced in
	// between the read above and this write still blocks the cancellation.
	if err := s.markets.MarkCancelled(ctx, id); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: mark cancelled %q: %w", id, err)
	}

	if cacheErr := s.cache.Invalidate(ctx, id); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.publishMarketEvent(ctx, "market_cancelled", m)

	if s.notifier != nil {
		if err := s.notifier.MarketCancelled(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "market_service: cancel notification failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.audit.Log(ctx, "market.cancel", map[string]any{
		"market_id": id,
		"authority": authority,
	}); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}

	return m, nil
}

// publishMarketEvent emits a lifecycle event on the markets channel.
// Publish failures are logged, not returned; the bus is best-effort fan-out.
func (s *MarketService) publishMarketEvent(ctx context.Context, event string, m domain.Market) {
	evt, _ := json.Marshal(map[string]any{
		"event":     event,
		"market_id": m.ID,
		"question":  m.Question,
		"status":    string(m.Status),
		"end_time":  m.EndTime.Format(time.RFC3339),
	})
	if err := s.bus.Publish(ctx, domain.ChannelMarkets, evt); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish market event failed",
			slog.String("market_id", m.ID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
