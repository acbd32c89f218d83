package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the background goroutines: the deadline sweeper and
// the sentiment broadcaster.
type Orchestrator struct {
	sweeper           *Sweeper
	broadcaster       *Broadcaster
	sweepInterval     time.Duration
	broadcastInterval time.Duration
	logger            *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. broadcaster may be nil to run
// the sweeper alone.
func NewOrchestrator(
	sweeper *Sweeper,
	broadcaster *Broadcaster,
	sweepInterval time.Duration,
	broadcastInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sweeper:           sweeper,
		broadcaster:       broadcaster,
		sweepInterval:     sweepInterval,
		broadcastInterval: broadcastInterval,
		logger:            logger,
	}
}

// Run starts the background loops as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("sweep_interval", o.sweepInterval),
		slog.Duration("broadcast_interval", o.broadcastInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info("starting sweeper loop")
		err := o.sweeper.RunLoop(ctx, o.sweepInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("sweeper: %w", err)
	})

	if o.broadcaster != nil {
		g.Go(func() error {
			o.logger.Info("starting broadcaster loop")
			err := o.broadcaster.RunLoop(ctx, o.broadcastInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("broadcaster: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
