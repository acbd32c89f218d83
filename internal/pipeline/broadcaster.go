package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/engine"
	"github.com/aethernaut-labs/marketd/internal/service"
)

// Broadcaster periodically publishes sentiment snapshots of open markets so
// WebSocket subscribers see current prices even on markets with no recent
// bets.
type Broadcaster struct {
	markets   *service.MarketService
	prices    domain.PriceCache
	bus       domain.SignalBus
	pageLimit int
	logger    *slog.Logger
}

// NewBroadcaster creates a Broadcaster covering up to pageLimit open markets
// per tick.
func NewBroadcaster(
	markets *service.MarketService,
	prices domain.PriceCache,
	bus domain.SignalBus,
	pageLimit int,
	logger *slog.Logger,
) *Broadcaster {
	if pageLimit <= 0 {
		pageLimit = 200
	}
	return &Broadcaster{
		markets:   markets,
		prices:    prices,
		bus:       bus,
		pageLimit: pageLimit,
		logger:    logger,
	}
}

// RunLoop broadcasts on every tick of interval until ctx is cancelled.
func (b *Broadcaster) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster loop stopped")
			return ctx.Err()
		case <-ticker.C:
			b.broadcast(ctx)
		}
	}
}

func (b *Broadcaster) broadcast(ctx context.Context) {
	open, err := b.markets.List(ctx, domain.MarketStatusOpen, domain.ListOpts{Limit: b.pageLimit})
	if err != nil {
		b.logger.Error("broadcast list failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, m := range open {
		snap := engine.Snapshot(m)

		if err := b.prices.SetPrices(ctx, m.ID, snap.YesPrice, snap.NoPrice, now); err != nil {
			b.logger.Warn("broadcast price cache set failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}

		evt, _ := json.Marshal(map[string]any{
			"event":     "sentiment",
			"market_id": m.ID,
			"yes_price": snap.YesPrice,
			"no_price":  snap.NoPrice,
			"yes_pool":  snap.YesPool,
			"no_pool":   snap.NoPool,
			"timestamp": now.Format(time.RFC3339Nano),
		})
		if err := b.bus.Publish(ctx, domain.ChannelPrices, evt); err != nil {
			b.logger.Warn("broadcast publish failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
