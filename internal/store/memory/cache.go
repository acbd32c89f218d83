package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// MarketCache is an in-process domain.MarketCache.
type MarketCache struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
}

func NewMarketCache() *MarketCache {
	return &MarketCache{markets: make(map[string]domain.Market)}
}

func (c *MarketCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.ID] = m
	return nil
}

func (c *MarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *MarketCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	return nil
}

type pricePoint struct {
	yes, no float64
	ts      time.Time
}

// PriceCache is an in-process domain.PriceCache.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricePoint
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricePoint)}
}

func (c *PriceCache) SetPrices(_ context.Context, marketID string, yes, no float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[marketID] = pricePoint{yes: yes, no: no, ts: ts}
	return nil
}

func (c *PriceCache) GetPrices(_ context.Context, marketID string) (float64, float64, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[marketID]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	return p.yes, p.no, p.ts, nil
}

// SignalBus is an in-process domain.SignalBus. Published payloads are
// delivered to every subscriber of the channel; slow subscribers drop
// messages rather than block the publisher.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(c)
				return
			}
		}
	}()

	return ch, nil
}

// LockManager is an in-process domain.LockManager. TTLs are ignored; locks
// live until released.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]bool
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]bool)}
}

func (l *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] {
		return nil, domain.ErrLockHeld
	}
	l.locks[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locks, key)
	}, nil
}

// AuditStore is an in-process domain.AuditStore.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	nextID  int64
}

func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return paginate(out, opts), nil
}

var (
	_ domain.MarketCache = (*MarketCache)(nil)
	_ domain.PriceCache  = (*PriceCache)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.AuditStore  = (*AuditStore)(nil)
)
