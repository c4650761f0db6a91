package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oppredict/oppredict/internal/domain"
)

// PredictionStore implements domain.PredictionStore using PostgreSQL. The
// by-user and by-market lookups are plain indexed queries; there are no
// hand-maintained id sets to keep in sync.
type PredictionStore struct {
	q querier
}

const predictionCols = `id, market_id, outcome_id, user_id, amount, status,
	potential_payout, created_at, resolved_at`

// Create inserts a new prediction.
func (s *PredictionStore) Create(ctx context.Context, p domain.Prediction) error {
	const query = `
		INSERT INTO predictions (
			id, market_id, outcome_id, user_id, amount, status,
			potential_payout, created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.Exec(ctx, query,
		p.ID, p.MarketID, p.OutcomeID, p.UserID, p.Amount, string(p.Status),
		p.PotentialPayout, p.CreatedAt, p.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create prediction %s: %w", p.ID, err)
	}
	return nil
}

func scanPrediction(row pgx.Row) (domain.Prediction, error) {
	var p domain.Prediction
	var status string
	err := row.Scan(
		&p.ID, &p.MarketID, &p.OutcomeID, &p.UserID, &p.Amount, &status,
		&p.PotentialPayout, &p.CreatedAt, &p.ResolvedAt,
	)
	if err != nil {
		return domain.Prediction{}, err
	}
	p.Status = domain.PredictionStatus(status)
	return p, nil
}

// GetByID retrieves a prediction by its primary key.
func (s *PredictionStore) GetByID(ctx context.Context, id string) (domain.Prediction, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+predictionCols+` FROM predictions WHERE id = $1`, id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, domain.ErrNotFound
		}
		return domain.Prediction{}, fmt.Errorf("postgres: get prediction %s: %w", id, err)
	}
	return p, nil
}

// ListByUser returns a user's predictions, most recent first.
func (s *PredictionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionCols + ` FROM predictions
		WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.list(ctx, query, args...)
}

// ListByMarket returns every prediction placed on a market.
func (s *PredictionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error) {
	return s.list(ctx,
		`SELECT `+predictionCols+` FROM predictions
		 WHERE market_id = $1 ORDER BY created_at`, marketID)
}

func (s *PredictionStore) list(ctx context.Context, query string, args ...any) ([]domain.Prediction, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions: %w", err)
	}
	defer rows.Close()

	var preds []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan prediction: %w", err)
		}
		preds = append(preds, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list predictions rows: %w", err)
	}
	return preds, nil
}

// Update overwrites a prediction (last-write-wins).
func (s *PredictionStore) Update(ctx context.Context, p domain.Prediction) error {
	const query = `
		UPDATE predictions SET
			status           = $2,
			potential_payout = $3,
			resolved_at      = $4
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query, p.ID, string(p.Status), p.PotentialPayout, p.ResolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: update prediction %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplySettlement records a prediction's won/lost outcome. Only active
// predictions are eligible so settlement cannot overwrite a prior result.
func (s *PredictionStore) ApplySettlement(ctx context.Context, set domain.PredictionSettlement) error {
	const query = `
		UPDATE predictions SET
			status           = $2,
			potential_payout = $3,
			resolved_at      = $4
		WHERE id = $1 AND status = 'active'`

	tag, err := s.q.Exec(ctx, query,
		set.PredictionID, string(set.Status), set.Payout, set.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: settle prediction %s: %w", set.PredictionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyRedemption marks a won prediction redeemed. The status predicate
// makes the transition single-shot even under concurrent attempts: the
// second writer matches zero rows and gets ErrNotRedeemable.
func (s *PredictionStore) ApplyRedemption(ctx context.Context, id string) error {
	const query = `
		UPDATE predictions SET status = 'redeemed'
		WHERE id = $1 AND status = 'won'`

	tag, err := s.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: redeem prediction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotRedeemable
	}
	return nil
}

// Delete removes a prediction.
func (s *PredictionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM predictions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete prediction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByMarket removes all predictions for a market and returns the count.
func (s *PredictionStore) DeleteByMarket(ctx context.Context, marketID string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM predictions WHERE market_id = $1`, marketID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete predictions for market %s: %w", marketID, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.PredictionStore = (*PredictionStore)(nil)
