package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oppredict/oppredict/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Outcomes are
// stored as a JSONB column since they are always read and written with
// their market.
type MarketStore struct {
	q querier
}

const marketCols = `id, question, description, market_type, outcomes,
	creator_id, category, end_date, status, pool_amount, participant_count,
	resolved_outcome_id, resolved_at, resolved_by, admin_fee, remaining_pot,
	total_winning_amount, created_at, updated_at`

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes for market %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (
			id, question, description, market_type, outcomes,
			creator_id, category, end_date, status,
			pool_amount, participant_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`

	_, err = s.q.Exec(ctx, query,
		m.ID, m.Question, m.Description, string(m.Type), outcomes,
		m.CreatorID, m.Category, m.EndDate, string(m.Status),
		m.PoolAmount, m.ParticipantCount, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m        domain.Market
		mType    string
		status   string
		outcomes []byte
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.Description, &mType, &outcomes,
		&m.CreatorID, &m.Category, &m.EndDate, &status,
		&m.PoolAmount, &m.ParticipantCount,
		&m.ResolvedOutcomeID, &m.ResolvedAt, &m.ResolvedBy,
		&m.AdminFee, &m.RemainingPot, &m.TotalWinningAmount,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	m.Type = domain.MarketType(mType)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets matching the filter, most recent first.
func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, f.Category)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Update overwrites a market's editable fields. Settlement fields are only
// writable through ApplyResolution.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes for market %s: %w", m.ID, err)
	}

	const query = `
		UPDATE markets SET
			question    = $2,
			description = $3,
			outcomes    = $4,
			category    = $5,
			end_date    = $6,
			status      = $7,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		m.ID, m.Question, m.Description, outcomes,
		m.Category, m.EndDate, string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a market. Predictions are intentionally left in place.
func (s *MarketStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// ApplyStake adds amount to the market pool and the staked outcome's
// counters, and bumps the participant count on the user's first stake. The
// participant check and the aggregate update happen in the same statement
// flow so a duplicate participant row can never double-count.
func (s *MarketStore) ApplyStake(ctx context.Context, marketID string, outcomeID int, userID string, amount float64) (domain.StakeApplied, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO market_participants (market_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (market_id, user_id) DO NOTHING`,
		marketID, userID,
	)
	if err != nil {
		return domain.StakeApplied{}, fmt.Errorf("postgres: record participant %s/%s: %w", marketID, userID, err)
	}
	newParticipant := tag.RowsAffected() > 0

	participantDelta := 0
	if newParticipant {
		participantDelta = 1
	}

	// Outcomes live in JSONB; locate the element by id and bump its
	// votes/amount in place.
	const query = `
		UPDATE markets SET
			pool_amount       = pool_amount + $2,
			participant_count = participant_count + $3,
			outcomes = (
				SELECT jsonb_agg(
					CASE WHEN (o->>'id')::int = $4
					THEN jsonb_set(
						jsonb_set(o, '{votes}', to_jsonb((o->>'votes')::int + 1)),
						'{amount}', to_jsonb((o->>'amount')::float + $2)
					)
					ELSE o END
				)
				FROM jsonb_array_elements(outcomes) AS o
			),
			updated_at = NOW()
		WHERE id = $1`

	tag, err = s.q.Exec(ctx, query, marketID, amount, participantDelta, outcomeID)
	if err != nil {
		return domain.StakeApplied{}, fmt.Errorf("postgres: apply stake to market %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.StakeApplied{}, domain.ErrNotFound
	}

	return domain.StakeApplied{NewParticipant: newParticipant}, nil
}

// ApplyResolution marks the market resolved and records settlement totals.
// The WHERE clause guards against double resolution at the database level,
// not just against the market the caller read earlier.
func (s *MarketStore) ApplyResolution(ctx context.Context, marketID string, res domain.MarketResolution) error {
	const query = `
		UPDATE markets SET
			status               = $2,
			resolved_outcome_id  = $3,
			resolved_at          = $4,
			resolved_by          = $5,
			admin_fee            = $6,
			remaining_pot        = $7,
			total_winning_amount = $8,
			updated_at           = NOW()
		WHERE id = $1 AND resolved_outcome_id IS NULL`

	tag, err := s.q.Exec(ctx, query,
		marketID, string(domain.MarketStatusResolved),
		res.OutcomeID, res.ResolvedAt, res.ResolvedBy,
		res.AdminFee, res.RemainingPot, res.TotalWinningAmount,
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already resolved; disambiguate for the caller.
		var exists bool
		if err := s.q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM markets WHERE id = $1)`, marketID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: resolve market %s: %w", marketID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// ListResolvedBefore returns markets resolved strictly before the cutoff.
func (s *MarketStore) ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE resolved_at IS NOT NULL AND resolved_at < $1
		 ORDER BY resolved_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolved market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolved markets rows: %w", err)
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
