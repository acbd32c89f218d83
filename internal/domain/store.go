package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets. Mutations are conditional on the market's
// current status so concurrent callers cannot clobber each other: a pool
// increment only applies to an open market, and a status transition applies
// exactly once.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)

	// ListDue returns non-terminal markets whose deadline has passed. Used
	// by the settlement sweep; read-only.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Market, error)

	// AddToPool atomically adds amount to one side's pool, bumps the bet
	// counter, and refreshes the consensus price, but only while the market
	// is open and before its deadline. Returns the updated market, or
	// ErrMarketClosed if the guard failed.
	AddToPool(ctx context.Context, id string, side Outcome, amount uint64, now time.Time) (Market, error)

	// MarkClosed transitions open -> closed, only once the deadline has
	// passed. A no-op result (market already closed) is not an error.
	MarkClosed(ctx context.Context, id string, now time.Time) error

	// MarkResolved transitions closed -> resolved with the winning outcome.
	// Exactly one concurrent caller succeeds; the rest observe
	// ErrAlreadyResolved (or ErrNotYetClosed if the market is still open).
	MarkResolved(ctx context.Context, id string, outcome Outcome, now time.Time) (Market, error)

	// MarkCancelled transitions open -> cancelled while no bets exist.
	MarkCancelled(ctx context.Context, id string) error
}

// PositionStore persists positions. Positions are append-only; the claimed
// flag is the only mutable field and flips at most once.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Position, error)
	ListByBettor(ctx context.Context, bettor string, opts ListOpts) ([]Position, error)

	// Claim atomically flips claimed false -> true and records the payout.
	// Returns false if the position was already claimed.
	Claim(ctx context.Context, id string, payout uint64, now time.Time) (bool, error)

	// SumByMarket returns the total staked per side, for invariant checks
	// and settlement reports.
	SumByMarket(ctx context.Context, marketID string) (yes, no uint64, err error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
