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

// PositionStore implements domain.PositionStore using PostgreSQL. Positions
// are append-only rows; Claim is the single sanctioned mutation and is a
// conditional UPDATE so a duplicate claim can never double-pay.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, bettor, side, amount, placed_at,
	claimed, claimed_at, payout`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var amount, payout int64
	var side string

	err := row.Scan(
		&p.ID, &p.MarketID, &p.Bettor, &side, &amount, &p.PlacedAt,
		&p.Claimed, &p.ClaimedAt, &payout,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Outcome(side)
	p.Amount = uint64(amount)
	p.Payout = uint64(payout)
	return p, nil
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, bettor, side, amount, placed_at, claimed, payout
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.Bettor, string(p.Side),
		int64(p.Amount), p.PlacedAt, p.Claimed, int64(p.Payout),
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListByMarket returns all positions on a market, oldest first.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE market_id = $1
		ORDER BY placed_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, marketID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %s: %w", marketID, err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// ListByBettor returns a bettor's positions across markets, newest first.
func (s *PositionStore) ListByBettor(ctx context.Context, bettor string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + `
		FROM positions WHERE bettor = $1
		ORDER BY placed_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, bettor, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for bettor %s: %w", bettor, err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Claim flips claimed false -> true and records the payout. The conditional
// UPDATE serializes duplicate claims on the database row: exactly one caller
// observes true, every other caller false.
func (s *PositionStore) Claim(ctx context.Context, id string, payout uint64, now time.Time) (bool, error) {
	const query = `
		UPDATE positions SET claimed = TRUE, claimed_at = $2, payout = $3
		WHERE id = $1 AND claimed = FALSE`

	tag, err := s.pool.Exec(ctx, query, id, now, int64(payout))
	if err != nil {
		return false, fmt.Errorf("postgres: claim position %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SumByMarket returns the total staked per side of a market.
func (s *PositionStore) SumByMarket(ctx context.Context, marketID string) (yes, no uint64, err error) {
	const query = `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE side = 'yes'), 0),
			COALESCE(SUM(amount) FILTER (WHERE side = 'no'), 0)
		FROM positions WHERE market_id = $1`

	var yesSum, noSum int64
	if err := s.pool.QueryRow(ctx, query, marketID).Scan(&yesSum, &noSum); err != nil {
		return 0, 0, fmt.Errorf("postgres: sum positions for market %s: %w", marketID, err)
	}
	return uint64(yesSum), uint64(noSum), nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
