package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oppredict/oppredict/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL upserts so every
// increment is a single atomic statement.
type StatsStore struct {
	q querier
}

// Get returns a user's aggregates. Users without a row have zero stats.
func (s *StatsStore) Get(ctx context.Context, userID string) (domain.UserStats, error) {
	var st domain.UserStats
	err := s.q.QueryRow(ctx, `
		SELECT user_id, total_predictions, correct_predictions,
		       total_staked, total_earnings, updated_at
		FROM user_stats WHERE user_id = $1`,
		userID,
	).Scan(
		&st.UserID, &st.TotalPredictions, &st.CorrectPredictions,
		&st.TotalStaked, &st.TotalEarnings, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserStats{UserID: userID}, nil
		}
		return domain.UserStats{}, fmt.Errorf("postgres: get stats %s: %w", userID, err)
	}
	return st, nil
}

// ApplyStake records one new prediction of the given amount.
func (s *StatsStore) ApplyStake(ctx context.Context, userID string, amount float64) error {
	const query = `
		INSERT INTO user_stats (user_id, total_predictions, total_staked, updated_at)
		VALUES ($1, 1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_predictions = user_stats.total_predictions + 1,
			total_staked      = user_stats.total_staked + EXCLUDED.total_staked,
			updated_at        = NOW()`

	if _, err := s.q.Exec(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("postgres: stats stake %s: %w", userID, err)
	}
	return nil
}

// ApplyResolution records one resolved prediction with its signed earnings.
func (s *StatsStore) ApplyResolution(ctx context.Context, userID string, correct bool, earnings float64) error {
	correctDelta := 0
	if correct {
		correctDelta = 1
	}

	const query = `
		INSERT INTO user_stats (user_id, correct_predictions, total_earnings, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			correct_predictions = user_stats.correct_predictions + EXCLUDED.correct_predictions,
			total_earnings      = user_stats.total_earnings + EXCLUDED.total_earnings,
			updated_at          = NOW()`

	if _, err := s.q.Exec(ctx, query, userID, correctDelta, earnings); err != nil {
		return fmt.Errorf("postgres: stats resolution %s: %w", userID, err)
	}
	return nil
}

// Top returns the highest-earning users.
func (s *StatsStore) Top(ctx context.Context, limit int) ([]domain.UserStats, error) {
	rows, err := s.q.Query(ctx, `
		SELECT user_id, total_predictions, correct_predictions,
		       total_staked, total_earnings, updated_at
		FROM user_stats
		ORDER BY total_earnings DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.UserStats
	for rows.Next() {
		var st domain.UserStats
		if err := rows.Scan(
			&st.UserID, &st.TotalPredictions, &st.CorrectPredictions,
			&st.TotalStaked, &st.TotalEarnings, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top stats rows: %w", err)
	}
	return stats, nil
}

// Compile-time interface check.
var _ domain.StatsStore = (*StatsStore)(nil)
