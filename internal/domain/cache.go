package domain

import (
	"context"
	"time"
)

// MarketCache is a read-through cache of market snapshots.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}

// Leaderboard is the ranked earnings board.
type Leaderboard interface {
	SetScore(ctx context.Context, userID string, earnings float64) error
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Remove(ctx context.Context, userID string) error
}

// LockManager provides distributed locks, used to serialize stake and
// settlement writes per market.
type LockManager interface {
	// Acquire obtains the lock or fails with ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces request-rate limits.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is the pub/sub fabric for market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
