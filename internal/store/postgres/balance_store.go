package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oppredict/oppredict/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Credits and
// debits are single atomic statements, never read-modify-write round trips.
type BalanceStore struct {
	q querier
}

// Get returns a user's balance. Users with no ledger row have a zero
// balance rather than an error.
func (s *BalanceStore) Get(ctx context.Context, userID string) (domain.UserBalance, error) {
	var b domain.UserBalance
	err := s.q.QueryRow(ctx,
		`SELECT user_id, available, updated_at FROM user_balances WHERE user_id = $1`,
		userID,
	).Scan(&b.UserID, &b.Available, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserBalance{UserID: userID}, nil
		}
		return domain.UserBalance{}, fmt.Errorf("postgres: get balance %s: %w", userID, err)
	}
	return b, nil
}

// Credit adds amount to the user's balance, creating the row on first use.
func (s *BalanceStore) Credit(ctx context.Context, userID string, amount float64) error {
	const query = `
		INSERT INTO user_balances (user_id, available, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			available  = user_balances.available + EXCLUDED.available,
			updated_at = NOW()`

	if _, err := s.q.Exec(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", userID, err)
	}
	return nil
}

// Debit subtracts amount from the user's balance. The non-negative check
// constraint on the table turns an overdraw into ErrInsufficientBalance.
func (s *BalanceStore) Debit(ctx context.Context, userID string, amount float64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE user_balances SET
			available  = available - $2,
			updated_at = NOW()
		WHERE user_id = $1`,
		userID, amount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "user_balances_non_negative" {
			return domain.ErrInsufficientBalance
		}
		return fmt.Errorf("postgres: debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceStore = (*BalanceStore)(nil)
