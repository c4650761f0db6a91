package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oppredict/oppredict/internal/domain"
)

const stakeLockTTL = 10 * time.Second

// PredictionService places, reads, and redeems predictions. Placing a stake
// debits the user's balance, creates the prediction, and updates the market
// and user aggregates in one transaction under the market's lock.
type PredictionService struct {
	stores domain.StoreSet
	tx     domain.TxRunner
	locks  domain.LockManager
	cache  domain.MarketCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPredictionService creates a PredictionService. stores are used for
// plain reads; write flows go through tx.
func NewPredictionService(
	stores domain.StoreSet,
	tx domain.TxRunner,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PredictionService {
	return &PredictionService{
		stores: stores,
		tx:     tx,
		locks:  locks,
		cache:  cache,
		bus:    bus,
		logger: logger,
	}
}

// Place stakes amount on outcomeID of the given market for userID. The
// market must be active, unresolved, and before its end date, and the user
// must hold sufficient balance.
func (s *PredictionService) Place(ctx context.Context, marketID string, outcomeID int, userID string, amount float64) (domain.Prediction, error) {
	if amount <= 0 {
		return domain.Prediction{}, fmt.Errorf("%w: stake amount must be positive", domain.ErrValidation)
	}

	unlock, err := s.locks.Acquire(ctx, "market:"+marketID, stakeLockTTL)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction: lock market %s: %w", marketID, err)
	}
	defer unlock()

	prediction := domain.Prediction{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		OutcomeID: outcomeID,
		UserID:    userID,
		Amount:    amount,
		Status:    domain.PredictionStatusActive,
		CreatedAt: time.Now().UTC(),
	}

	var market domain.Market

	err = s.tx.InTx(ctx, func(st domain.StoreSet) error {
		m, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if !m.OpenForStaking(prediction.CreatedAt) {
			return domain.ErrMarketClosed
		}
		if !m.HasOutcome(outcomeID) {
			return domain.ErrInvalidOutcome
		}

		if err := st.Balances.Debit(ctx, userID, amount); err != nil {
			return err
		}
		if err := st.Predictions.Create(ctx, prediction); err != nil {
			return err
		}
		if _, err := st.Markets.ApplyStake(ctx, marketID, outcomeID, userID, amount); err != nil {
			return err
		}
		if err := st.Stats.ApplyStake(ctx, userID, amount); err != nil {
			return err
		}

		market, err = st.Markets.GetByID(ctx, marketID)
		return err
	})
	if err != nil {
		return domain.Prediction{}, err
	}

	s.afterStake(ctx, market, prediction)
	return prediction, nil
}

func (s *PredictionService) afterStake(ctx context.Context, market domain.Market, p domain.Prediction) {
	if err := s.cache.Invalidate(ctx, market.ID); err != nil {
		s.logger.WarnContext(ctx, "prediction: cache invalidate failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(domain.MarketEvent{
		Type:             "stake",
		MarketID:         market.ID,
		OutcomeID:        p.OutcomeID,
		Amount:           p.Amount,
		PoolAmount:       market.PoolAmount,
		ParticipantCount: market.ParticipantCount,
		At:               p.CreatedAt,
	})
	if err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelMarkets, payload); err != nil {
			s.logger.WarnContext(ctx, "prediction: publish failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Get returns a single prediction.
func (s *PredictionService) Get(ctx context.Context, id string) (domain.Prediction, error) {
	prediction, err := s.stores.Predictions.GetByID(ctx, id)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("prediction: get %s: %w", id, err)
	}
	return prediction, nil
}

// ListByUser returns a user's predictions, most recent first.
func (s *PredictionService) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error) {
	predictions, err := s.stores.Predictions.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("prediction: list by user %s: %w", userID, err)
	}
	return predictions, nil
}

// ListByMarket returns every prediction on a market.
func (s *PredictionService) ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error) {
	predictions, err := s.stores.Predictions.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("prediction: list by market %s: %w", marketID, err)
	}
	return predictions, nil
}

// Redeem moves a won prediction to redeemed and credits the payout to the
// owner's balance. Only the owner can redeem, and only once.
func (s *PredictionService) Redeem(ctx context.Context, predictionID, userID string) (domain.Prediction, error) {
	var redeemed domain.Prediction

	err := s.tx.InTx(ctx, func(st domain.StoreSet) error {
		p, err := st.Predictions.GetByID(ctx, predictionID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return domain.ErrNotFound
		}
		if p.Status != domain.PredictionStatusWon || p.PotentialPayout == nil {
			return domain.ErrNotRedeemable
		}

		// The guarded transition is the authority, not the read above: a
		// competing redemption that got there first makes this one fail
		// before any credit is written.
		if err := st.Predictions.ApplyRedemption(ctx, p.ID); err != nil {
			return err
		}
		if err := st.Balances.Credit(ctx, userID, *p.PotentialPayout); err != nil {
			return err
		}

		p.Status = domain.PredictionStatusRedeemed

		redeemed = p
		return nil
	})
	if err != nil {
		return domain.Prediction{}, err
	}

	s.logger.InfoContext(ctx, "prediction: redeemed",
		slog.String("prediction_id", redeemed.ID),
		slog.String("user_id", userID),
		slog.Float64("payout", *redeemed.PotentialPayout),
	)
	return redeemed, nil
}
