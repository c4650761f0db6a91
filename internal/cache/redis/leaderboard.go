package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oppredict/oppredict/internal/domain"
)

const leaderboardKey = "leaderboard:earnings"

// LeaderboardCache implements domain.Leaderboard using a Redis sorted set
// keyed by user ID and scored by total earnings.
type LeaderboardCache struct {
	rdb *redis.Client
}

// NewLeaderboardCache creates a LeaderboardCache backed by the given Client.
func NewLeaderboardCache(c *Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: c.rdb}
}

// SetScore records a user's total earnings on the board.
func (lc *LeaderboardCache) SetScore(ctx context.Context, userID string, earnings float64) error {
	err := lc.rdb.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  earnings,
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: leaderboard set %s: %w", userID, err)
	}
	return nil
}

// Top returns the highest earners in descending order, ranks starting at 1.
func (lc *LeaderboardCache) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	zs, err := lc.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard top: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(zs))
	for i, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   userID,
			Earnings: z.Score,
		})
	}
	return entries, nil
}

// Remove drops a user from the board.
func (lc *LeaderboardCache) Remove(ctx context.Context, userID string) error {
	if err := lc.rdb.ZRem(ctx, leaderboardKey, userID).Err(); err != nil {
		return fmt.Errorf("redis: leaderboard remove %s: %w", userID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Leaderboard = (*LeaderboardCache)(nil)
