package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oppredict/oppredict/internal/server"
	"github.com/oppredict/oppredict/internal/server/handler"
	"github.com/oppredict/oppredict/internal/server/ws"
)

// ServeMode runs the full service: the HTTP + WebSocket API, the leaderboard
// refresher, and, when enabled, the periodic settlement archiver. It blocks
// until the context is cancelled or a component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub bridging the signal bus to browser clients.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Leaderboard refresher: rebuilds the cached board periodically and on
	// resolution events.
	g.Go(func() error {
		err := deps.Leaderboards.Run(ctx, a.cfg.Cache.LeaderboardRefresh.Duration)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Settlement archiver loop.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:           a.cfg.Server.Port,
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			RateLimit:      a.cfg.Server.RateLimit,
			RateLimitBurst: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:      handler.NewHealthHandler(a.logger),
			Markets:     handler.NewMarketHandler(deps.Markets, deps.Settlement, a.logger),
			Predictions: handler.NewPredictionHandler(deps.Predictions, a.logger),
			Users:       handler.NewUserHandler(deps.Stores.Balances, deps.Stores.Stats, deps.Leaderboards, a.logger),
		},
		deps.Identity,
		deps.RateLimiter,
		hub,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode runs one archival pass over settlements past the retention
// cutoff and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.archiveOnce(ctx, deps)
}

// runArchiveLoop runs archiveOnce on the configured interval until the
// context is cancelled. Failures are logged; the loop keeps going so a
// transient S3 outage does not take the archiver down for good.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.archiveOnce(ctx, deps); err != nil {
				a.logger.WarnContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveOnce archives every settlement older than the retention window.
func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	archived, err := deps.Archiver.ArchiveSettlements(ctx, cutoff)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Int64("markets_archived", archived),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
