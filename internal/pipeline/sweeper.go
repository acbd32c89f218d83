// Package pipeline contains the engine's background loops: the deadline
// sweeper that closes expired markets and the sentiment broadcaster that
// keeps subscribers supplied with fresh prices.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/aethernaut-labs/marketd/internal/service"
)

// Sweeper periodically closes markets whose deadline has passed. Markets
// also close lazily on read, so the sweeper is a safety net that bounds how
// long an expired market can sit in the open state unobserved.
type Sweeper struct {
	settle    *service.SettlementService
	batchSize int
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper that closes up to batchSize markets per tick.
func NewSweeper(settle *service.SettlementService, batchSize int, logger *slog.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		settle:    settle,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RunLoop sweeps once immediately, then on every tick of interval until ctx
// is cancelled. Sweep errors are logged and the loop keeps going; one bad
// market must not stall the rest.
func (s *Sweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	s.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	closed, err := s.settle.SweepDue(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("sweep failed",
			slog.Int("closed", closed),
			slog.String("error", err.Error()),
		)
		return
	}
	if closed > 0 {
		s.logger.Info("sweep closed due markets", slog.Int("closed", closed))
	}
}
