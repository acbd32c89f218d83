package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aethernaut-labs/marketd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. All mutations
// are single guarded UPDATE statements so concurrent callers serialize on the
// row without explicit locking: a pool increment applies only to an open
// market, and each state transition applies exactly once.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, creator, question, category, authority,
	yes_pool, no_pool, min_bet, max_bet, platform_fee_bps, resolution_delay,
	end_time, status, winning_outcome, resolved_at, total_bets,
	consensus_price_bps, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var yesPool, noPool, minBet, maxBet, totalBets int64
	var feeBps int16
	var status string
	var outcome *string
	var consensusBps *int64

	err := row.Scan(
		&m.ID, &m.Creator, &m.Question, &m.Category, &m.Authority,
		&yesPool, &noPool, &minBet, &maxBet, &feeBps, &m.Params.ResolutionDelay,
		&m.EndTime, &status, &outcome, &m.ResolvedAt, &totalBets,
		&consensusBps, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.YesPool = uint64(yesPool)
	m.NoPool = uint64(noPool)
	m.Params.MinBet = uint64(minBet)
	m.Params.MaxBet = uint64(maxBet)
	m.Params.PlatformFeeBps = uint16(feeBps)
	m.TotalBets = uint64(totalBets)
	m.Status = domain.MarketStatus(status)
	if outcome != nil {
		o := domain.Outcome(*outcome)
		m.WinningOutcome = &o
	}
	if consensusBps != nil {
		bps := uint64(*consensusBps)
		m.ConsensusPriceBps = &bps
	}
	return m, nil
}

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, question, category, authority,
			yes_pool, no_pool, min_bet, max_bet, platform_fee_bps,
			resolution_delay, end_time, status, total_bets,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Creator, m.Question, m.Category, m.Authority,
		int64(m.YesPool), int64(m.NoPool),
		int64(m.Params.MinBet), int64(m.Params.MaxBet), int16(m.Params.PlatformFeeBps),
		m.Params.ResolutionDelay, m.EndTime, string(m.Status), int64(m.TotalBets),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its ID.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets filtered by status (empty status returns all), newest
// first.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// ListDue returns non-terminal markets whose deadline has passed, oldest
// deadline first.
func (s *MarketStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + `
		FROM markets
		WHERE status IN ('open', 'closed') AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan due market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// AddToPool atomically grows one side's pool. The WHERE clause is the whole
// concurrency story: the increment lands only while the market is open and
// before its deadline, and two simultaneous bets both apply because each is
// its own row update.
func (s *MarketStore) AddToPool(ctx context.Context, id string, side domain.Outcome, amount uint64, now time.Time) (domain.Market, error) {
	column := "no_pool"
	if side == domain.OutcomeYes {
		column = "yes_pool"
	}

	query := fmt.Sprintf(`
		UPDATE markets SET
			%s = %s + $2,
			total_bets = total_bets + 1,
			consensus_price_bps = (yes_pool + CASE WHEN $4 THEN $2 ELSE 0 END) * 10000
				/ (yes_pool + no_pool + $2),
			updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND end_time > $3
		RETURNING `+marketSelectCols, column, column)

	m, err := scanMarket(s.pool.QueryRow(ctx, query,
		id, int64(amount), now, side == domain.OutcomeYes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Guard failed: distinguish a missing market from a closed one.
			if _, getErr := s.GetByID(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
				return domain.Market{}, domain.ErrNotFound
			}
			return domain.Market{}, domain.ErrMarketClosed
		}
		return domain.Market{}, fmt.Errorf("postgres: add to pool %s: %w", id, err)
	}
	return m, nil
}

// MarkClosed transitions open -> closed once the deadline has passed. Losing
// the race to another closer is not an error.
func (s *MarketStore) MarkClosed(ctx context.Context, id string, now time.Time) error {
	const query = `
		UPDATE markets SET status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND end_time <= $2`

	if _, err := s.pool.Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("postgres: mark market %s closed: %w", id, err)
	}
	return nil
}

// MarkResolved transitions closed -> resolved. The guarded UPDATE guarantees
// that of any number of concurrent resolvers exactly one wins; the rest see
// the market's real state and get the matching sentinel.
func (s *MarketStore) MarkResolved(ctx context.Context, id string, outcome domain.Outcome, now time.Time) (domain.Market, error) {
	query := `
		UPDATE markets SET
			status = 'resolved',
			winning_outcome = $2,
			resolved_at = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'closed'
		RETURNING ` + marketSelectCols

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id, string(outcome), now))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}

	current, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return domain.Market{}, getErr
	}
	switch current.Status {
	case domain.MarketStatusOpen:
		return domain.Market{}, domain.ErrNotYetClosed
	case domain.MarketStatusResolved:
		return domain.Market{}, domain.ErrAlreadyResolved
	case domain.MarketStatusCancelled:
		return domain.Market{}, domain.ErrMarketCancelled
	}
	return domain.Market{}, fmt.Errorf("postgres: resolve market %s: unexpected status %q", id, current.Status)
}

// MarkCancelled transitions open -> cancelled while the market has no bets.
func (s *MarketStore) MarkCancelled(ctx context.Context, id string) error {
	const query = `
		UPDATE markets SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND total_bets = 0`

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := s.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current.TotalBets > 0 {
			return domain.ErrBetsAlreadyPlaced
		}
		return domain.ErrMarketClosed
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
