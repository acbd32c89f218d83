// Package memory provides mutex-guarded in-memory implementations of the
// domain store interfaces. They mirror the conditional-update semantics of
// the Postgres stores and back the service-level tests, including the
// concurrency ones.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aethernaut-labs/marketd/internal/domain"
	"github.com/aethernaut-labs/marketd/internal/engine"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

// NewMarketStore creates an empty in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[string]domain.Market)}
}

// Create inserts a new market.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

// GetByID retrieves a market by its ID.
func (s *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// List returns markets filtered by status, newest first.
func (s *MarketStore) List(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Market
	for _, m := range s.markets {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

// ListDue returns non-terminal markets whose deadline has passed.
func (s *MarketStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Market
	for _, m := range s.markets {
		if !m.Terminal() && !now.Before(m.EndTime) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddToPool atomically grows one side's pool under the store mutex, with the
// same open-and-before-deadline guard as the SQL implementation.
func (s *MarketStore) AddToPool(_ context.Context, id string, side domain.Outcome, amount uint64, now time.Time) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	if m.Status != domain.MarketStatusOpen || !now.Before(m.EndTime) {
		return domain.Market{}, domain.ErrMarketClosed
	}

	if side == domain.OutcomeYes {
		m.YesPool += amount
	} else {
		m.NoPool += amount
	}
	m.TotalBets++
	bps := engine.ConsensusPriceBps(m)
	m.ConsensusPriceBps = &bps
	m.UpdatedAt = now

	s.markets[id] = m
	return m, nil
}

// MarkClosed transitions open -> closed once the deadline has passed.
func (s *MarketStore) MarkClosed(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status == domain.MarketStatusOpen && !now.Before(m.EndTime) {
		m.Status = domain.MarketStatusClosed
		m.UpdatedAt = now
		s.markets[id] = m
	}
	return nil
}

// MarkResolved transitions closed -> resolved exactly once.
func (s *MarketStore) MarkResolved(_ context.Context, id string, outcome domain.Outcome, now time.Time) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	switch m.Status {
	case domain.MarketStatusOpen:
		return domain.Market{}, domain.ErrNotYetClosed
	case domain.MarketStatusResolved:
		return domain.Market{}, domain.ErrAlreadyResolved
	case domain.MarketStatusCancelled:
		return domain.Market{}, domain.ErrMarketCancelled
	}

	m.Status = domain.MarketStatusResolved
	m.WinningOutcome = &outcome
	m.ResolvedAt = &now
	m.UpdatedAt = now
	s.markets[id] = m
	return m, nil
}

// MarkCancelled transitions open -> cancelled while the market has no bets.
func (s *MarketStore) MarkCancelled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.ErrMarketClosed
	}
	if m.TotalBets > 0 {
		return domain.ErrBetsAlreadyPlaced
	}
	m.Status = domain.MarketStatusCancelled
	s.markets[id] = m
	return nil
}

// PositionStore is an in-memory domain.PositionStore.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

// Create inserts a new position.
func (s *PositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[p.ID] = p
	return nil
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

// ListByMarket returns all positions on a market, oldest first.
func (s *PositionStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return paginate(out, opts), nil
}

// ListByBettor returns a bettor's positions, newest first.
func (s *PositionStore) ListByBettor(_ context.Context, bettor string, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.Bettor == bettor {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return paginate(out, opts), nil
}

// Claim flips claimed false -> true under the store mutex. Exactly one of
// any number of concurrent callers observes true.
func (s *PositionStore) Claim(_ context.Context, id string, payout uint64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Claimed {
		return false, nil
	}
	p.Claimed = true
	p.ClaimedAt = &now
	p.Payout = payout
	s.positions[id] = p
	return true, nil
}

// SumByMarket returns the total staked per side of a market.
func (s *PositionStore) SumByMarket(_ context.Context, marketID string) (yes, no uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.positions {
		if p.MarketID != marketID {
			continue
		}
		if p.Side == domain.OutcomeYes {
			yes += p.Amount
		} else {
			no += p.Amount
		}
	}
	return yes, no, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface checks.
var (
	_ domain.MarketStore   = (*MarketStore)(nil)
	_ domain.PositionStore = (*PositionStore)(nil)
)
