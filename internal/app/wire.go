package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oppredict/oppredict/internal/auth"
	s3blob "github.com/oppredict/oppredict/internal/blob/s3"
	"github.com/oppredict/oppredict/internal/cache/redis"
	"github.com/oppredict/oppredict/internal/config"
	"github.com/oppredict/oppredict/internal/domain"
	"github.com/oppredict/oppredict/internal/notify"
	"github.com/oppredict/oppredict/internal/service"
	"github.com/oppredict/oppredict/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence
	Stores domain.StoreSet
	Tx     domain.TxRunner

	// Caches
	MarketCache domain.MarketCache
	Leaderboard domain.Leaderboard
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	// Auth
	Authorizer domain.Authorizer
	Identity   domain.IdentityProvider

	// Services
	Markets      *service.MarketService
	Predictions  *service.PredictionService
	Settlement   *service.SettlementService
	Leaderboards *service.LeaderboardService

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 reports whether the current configuration requires object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || strings.ToLower(cfg.Mode) == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations || strings.ToLower(cfg.Mode) == "migrate" {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.Stores = pgClient.Stores()
	deps.Tx = pgClient

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Cache.MarketTTL.Duration)
	deps.Leaderboard = redis.NewLeaderboardCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival is enabled) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Stores.Markets,
			deps.Stores.Predictions,
		)
	}

	// --- Auth ---
	deps.Authorizer = auth.NewPolicy(cfg.Auth.AdminIDs)
	deps.Identity = auth.NewTokenIdentity(cfg.Auth.TokenSecret)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Markets = service.NewMarketService(
		deps.Stores.Markets, deps.MarketCache, deps.Authorizer,
		deps.SignalBus, deps.Notifier, logger,
	)
	deps.Predictions = service.NewPredictionService(
		deps.Stores, deps.Tx, deps.LockManager,
		deps.MarketCache, deps.SignalBus, logger,
	)
	deps.Settlement = service.NewSettlementService(
		deps.Authorizer, deps.Tx, deps.LockManager,
		deps.MarketCache, deps.SignalBus, deps.Notifier, logger,
	)
	deps.Leaderboards = service.NewLeaderboardService(
		deps.Stores.Stats, deps.Leaderboard, deps.SignalBus, logger,
	)

	return deps, cleanup, nil
}
