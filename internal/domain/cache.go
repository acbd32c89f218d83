package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest implied prices per market.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID string, yes, no float64, ts time.Time) error
	GetPrices(ctx context.Context, marketID string) (yes, no float64, ts time.Time, err error)
}

// MarketCache provides fast market lookups in front of the persistent store.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. Claim processing acquires a
// per-position lock so two concurrent claims of the same position serialize.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Signal bus channels. The WebSocket hub subscribes to all of them.
const (
	ChannelPrices      = "prices"
	ChannelMarkets     = "markets"
	ChannelResolutions = "resolutions"
	ChannelClaims      = "claims"
)

// SignalBus provides pub/sub fan-out for market events (price updates,
// resolutions, claims) consumed by the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
