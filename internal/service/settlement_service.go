package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oppredict/oppredict/internal/domain"
)

// settlementLockTTL bounds how long a settlement can hold its market lock.
const settlementLockTTL = 30 * time.Second

// Announcer pushes market lifecycle events to external channels. Calls are
// best-effort; implementations must not fail the triggering request.
type Announcer interface {
	MarketCreated(ctx context.Context, m domain.Market)
	MarketResolved(ctx context.Context, m domain.Market)
}

// SettlementService resolves markets and settles payouts. The whole
// settlement runs inside one database transaction under a per-market lock,
// so a market can never end up resolved with predictions still active.
type SettlementService struct {
	auth     domain.Authorizer
	tx       domain.TxRunner
	locks    domain.LockManager
	cache    domain.MarketCache
	bus      domain.SignalBus
	announce Announcer // optional
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService with all required
// dependencies. announce may be nil when no notification channels are
// configured.
func NewSettlementService(
	auth domain.Authorizer,
	tx domain.TxRunner,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	announce Announcer,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		auth:     auth,
		tx:       tx,
		locks:    locks,
		cache:    cache,
		bus:      bus,
		announce: announce,
		logger:   logger,
	}
}

// Resolve declares winningOutcomeID the winner of the market and settles
// all predictions: a 5% admin fee is credited to the resolver, the rest of
// the pot is split pro rata among winning stakes, every prediction moves to
// won or lost, and user aggregates are updated.
//
// When no prediction backed the winning outcome, all predictions are marked
// lost and the remaining pot stays undistributed; it is recorded on the
// market so a later policy (refund, rollover) can still reach it.
//
// It returns the settled market.
func (s *SettlementService) Resolve(ctx context.Context, marketID string, winningOutcomeID int, resolverID string) (domain.Market, error) {
	if err := s.auth.Authorize(ctx, resolverID, domain.ActionResolveMarket); err != nil {
		return domain.Market{}, err
	}

	unlock, err := s.locks.Acquire(ctx, "market:"+marketID, settlementLockTTL)
	if err != nil {
		return domain.Market{}, fmt.Errorf("settlement: lock market %s: %w", marketID, err)
	}
	defer unlock()

	var settled domain.Market

	err = s.tx.InTx(ctx, func(st domain.StoreSet) error {
		market, err := st.Markets.GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if market.Resolved() {
			return domain.ErrAlreadyResolved
		}
		if !market.HasOutcome(winningOutcomeID) {
			return domain.ErrInvalidOutcome
		}

		predictions, err := st.Predictions.ListByMarket(ctx, marketID)
		if err != nil {
			return err
		}
		if len(predictions) == 0 {
			return domain.ErrNoPredictions
		}

		var totalPot float64
		for _, p := range predictions {
			totalPot += p.Amount
		}
		adminFee := roundCents(totalPot * feeRate)
		remainingPot := roundCents(totalPot - adminFee)

		var winners []domain.Prediction
		var totalWinning float64
		for _, p := range predictions {
			if p.OutcomeID == winningOutcomeID {
				winners = append(winners, p)
				totalWinning += p.Amount
			}
		}

		resolvedAt := time.Now().UTC()

		err = st.Markets.ApplyResolution(ctx, marketID, domain.MarketResolution{
			OutcomeID:          winningOutcomeID,
			ResolvedAt:         resolvedAt,
			ResolvedBy:         resolverID,
			AdminFee:           adminFee,
			RemainingPot:       remainingPot,
			TotalWinningAmount: totalWinning,
		})
		if err != nil {
			return err
		}

		if err := st.Balances.Credit(ctx, resolverID, adminFee); err != nil {
			return err
		}

		payouts := map[string]float64{}
		if totalWinning > 0 {
			stakes := make([]float64, len(winners))
			for i, w := range winners {
				stakes[i] = w.Amount
			}
			for i, share := range splitPot(remainingPot, stakes) {
				payouts[winners[i].ID] = share
			}
		}

		for _, p := range predictions {
			share, won := payouts[p.ID]

			status := domain.PredictionStatusLost
			earnings := -p.Amount
			if won {
				status = domain.PredictionStatusWon
				earnings = share
			}

			err := st.Predictions.ApplySettlement(ctx, domain.PredictionSettlement{
				PredictionID: p.ID,
				Status:       status,
				Payout:       share,
				ResolvedAt:   resolvedAt,
			})
			if err != nil {
				return err
			}

			if err := st.Stats.ApplyResolution(ctx, p.UserID, won, earnings); err != nil {
				return err
			}
		}

		settled, err = st.Markets.GetByID(ctx, marketID)
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.afterResolve(ctx, settled)
	return settled, nil
}

// afterResolve performs the non-transactional follow-ups: dropping the
// cached snapshot and announcing the resolution. Failures here are logged
// and swallowed; the settlement itself has already committed.
func (s *SettlementService) afterResolve(ctx context.Context, market domain.Market) {
	if err := s.cache.Invalidate(ctx, market.ID); err != nil {
		s.logger.WarnContext(ctx, "settlement: cache invalidate failed",
			slog.String("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}

	event := domain.MarketEvent{
		Type:             "resolved",
		MarketID:         market.ID,
		OutcomeID:        *market.ResolvedOutcomeID,
		PoolAmount:       market.PoolAmount,
		ParticipantCount: market.ParticipantCount,
		At:               *market.ResolvedAt,
	}
	payload, err := json.Marshal(event)
	if err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelMarkets, payload); err != nil {
			s.logger.WarnContext(ctx, "settlement: publish failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.Publish(ctx, domain.ChannelLeaderboard, payload); err != nil {
			s.logger.WarnContext(ctx, "settlement: leaderboard publish failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.announce != nil {
		s.announce.MarketResolved(ctx, market)
	}

	s.logger.InfoContext(ctx, "settlement: market resolved",
		slog.String("market_id", market.ID),
		slog.Int("outcome_id", *market.ResolvedOutcomeID),
		slog.Float64("admin_fee", market.AdminFee),
		slog.Float64("remaining_pot", market.RemainingPot),
		slog.Float64("total_winning", market.TotalWinningAmount),
	)
}
