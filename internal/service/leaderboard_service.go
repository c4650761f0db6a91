package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oppredict/oppredict/internal/domain"
)

// leaderboardSize is how many users the cached board holds.
const leaderboardSize = 100

// LeaderboardService keeps the Redis earnings board in sync with the stats
// store and serves ranked reads.
type LeaderboardService struct {
	stats  domain.StatsStore
	board  domain.Leaderboard
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewLeaderboardService creates a LeaderboardService with all required
// dependencies.
func NewLeaderboardService(
	stats domain.StatsStore,
	board domain.Leaderboard,
	bus domain.SignalBus,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		stats:  stats,
		board:  board,
		bus:    bus,
		logger: logger,
	}
}

// Top returns the highest-earning users. It reads the cached board and
// falls back to the stats store when the board is empty.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.board.Top(ctx, limit)
	if err != nil {
		s.logger.WarnContext(ctx, "leaderboard: cached read failed",
			slog.String("error", err.Error()),
		)
	}
	if len(entries) > 0 {
		return entries, nil
	}

	stats, err := s.stats.Top(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: top: %w", err)
	}

	entries = make([]domain.LeaderboardEntry, 0, len(stats))
	for i, st := range stats {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   st.UserID,
			Earnings: st.TotalEarnings,
		})
	}
	return entries, nil
}

// Refresh rebuilds the cached board from the stats store.
func (s *LeaderboardService) Refresh(ctx context.Context) error {
	stats, err := s.stats.Top(ctx, leaderboardSize)
	if err != nil {
		return fmt.Errorf("leaderboard: refresh: %w", err)
	}

	for _, st := range stats {
		if err := s.board.SetScore(ctx, st.UserID, st.TotalEarnings); err != nil {
			return fmt.Errorf("leaderboard: refresh score %s: %w", st.UserID, err)
		}
	}

	s.logger.DebugContext(ctx, "leaderboard: refreshed",
		slog.Int("users", len(stats)),
	)
	return nil
}

// Run refreshes the board at the given interval and whenever a settlement
// is announced on the leaderboard channel. It blocks until the context is
// cancelled.
func (s *LeaderboardService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	events, err := s.bus.Subscribe(ctx, domain.ChannelLeaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: subscribe: %w", err)
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "leaderboard: initial refresh failed",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				return ctx.Err()
			}
		}

		if err := s.Refresh(ctx); err != nil {
			s.logger.WarnContext(ctx, "leaderboard: refresh failed",
				slog.String("error", err.Error()),
			)
		}
	}
}
