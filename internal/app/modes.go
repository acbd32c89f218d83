package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aethernaut-labs/marketd/internal/pipeline"
	"github.com/aethernaut-labs/marketd/internal/server"
	"github.com/aethernaut-labs/marketd/internal/server/handler"
	"github.com/aethernaut-labs/marketd/internal/server/ws"
)

// ServeMode runs the HTTP API and WebSocket hub only. Markets past their
// deadline are still closed lazily on read, but no background sweeper runs;
// pair with a separate sweep-mode process for timely closes.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return waitGroup(g)
}

// SweepMode runs the background loops only: the deadline sweeper and,
// when enabled, the sentiment broadcaster. No API surface is exposed.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps)
	return waitGroup(g)
}

// FullMode runs the API server and the background loops in one process.
// This is the default deployment shape.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	} else {
		a.logger.InfoContext(ctx, "http server disabled by configuration")
	}
	a.startPipeline(ctx, g, deps)
	return waitGroup(g)
}

// startServer registers the HTTP handlers and WebSocket hub on the errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Status:     handler.NewStatusHandler(a.cfg.Mode),
		Markets:    handler.NewMarketHandler(deps.Markets, a.logger),
		Bets:       handler.NewBetHandler(deps.Bets, a.logger),
		Positions:  handler.NewPositionHandler(deps.Bets, deps.Settlement, deps.PositionStore, a.logger),
		Resolution: handler.NewResolutionHandler(deps.Settlement, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.InfoContext(ctx, "http server wired",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("auth", a.cfg.Server.APIKey != ""),
		slog.Bool("rate_limit", a.cfg.Server.RateLimit > 0),
	)
}

// startPipeline registers the sweeper and optional broadcaster loops.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	sweeper := pipeline.NewSweeper(deps.Settlement, a.cfg.Sweep.BatchSize, a.logger)

	var broadcaster *pipeline.Broadcaster
	if a.cfg.Sweep.BroadcastEnabled {
		broadcaster = pipeline.NewBroadcaster(
			deps.Markets,
			deps.PriceCache,
			deps.SignalBus,
			a.cfg.Sweep.BroadcastPageSize,
			a.logger,
		)
	}

	orch := pipeline.NewOrchestrator(
		sweeper,
		broadcaster,
		a.cfg.Sweep.Interval.Duration,
		a.cfg.Sweep.BroadcastInterval.Duration,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// waitGroup blocks until all goroutines exit, treating context cancellation
// as a clean shutdown.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
