package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketFilter narrows market list queries.
type MarketFilter struct {
	Status   MarketStatus
	Category string
	ListOpts
}

// StakeApplied reports how a stake changed a market's aggregates.
type StakeApplied struct {
	NewParticipant bool
}

// MarketStore persists markets. Aggregate maintenance (pool amount,
// per-outcome totals, participant count) is hidden behind ApplyStake and
// ApplyResolution so call sites cannot partially update a market.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, f MarketFilter) ([]Market, error)
	Update(ctx context.Context, m Market) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)

	// ApplyStake adds amount to the market pool and to the outcome's
	// amount/vote counters, and increments the participant count only on
	// the user's first stake in this market.
	ApplyStake(ctx context.Context, marketID string, outcomeID int, userID string, amount float64) (StakeApplied, error)

	// ApplyResolution marks the market resolved and records the settlement
	// totals. It fails with ErrAlreadyResolved if a winning outcome has
	// already been set, regardless of what the caller read earlier.
	ApplyResolution(ctx context.Context, marketID string, res MarketResolution) error

	// ListResolvedBefore returns markets resolved strictly before the cutoff.
	ListResolvedBefore(ctx context.Context, before time.Time) ([]Market, error)
}

// PredictionStore persists individual stake records with indexed lookups by
// user and by market.
type PredictionStore interface {
	Create(ctx context.Context, p Prediction) error
	GetByID(ctx context.Context, id string) (Prediction, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Prediction, error)
	ListByMarket(ctx context.Context, marketID string) ([]Prediction, error)
	Update(ctx context.Context, p Prediction) error
	ApplySettlement(ctx context.Context, s PredictionSettlement) error
	// ApplyRedemption moves a won prediction to redeemed. Only predictions
	// currently in won status are eligible; it fails with ErrNotRedeemable
	// otherwise, so two competing redemption attempts cannot both succeed.
	ApplyRedemption(ctx context.Context, predictionID string) error
	Delete(ctx context.Context, id string) error
	DeleteByMarket(ctx context.Context, marketID string) (int64, error)
}

// BalanceStore is the credit/debit ledger for user cash balances.
type BalanceStore interface {
	Get(ctx context.Context, userID string) (UserBalance, error)
	Credit(ctx context.Context, userID string, amount float64) error
	// Debit fails with ErrInsufficientBalance when the available balance
	// does not cover amount.
	Debit(ctx context.Context, userID string, amount float64) error
}

// StatsStore maintains per-user prediction aggregates.
type StatsStore interface {
	Get(ctx context.Context, userID string) (UserStats, error)
	// ApplyStake increments total predictions and total staked.
	ApplyStake(ctx context.Context, userID string, amount float64) error
	// ApplyResolution records one resolved prediction: correct increments
	// the correct count, earnings is signed (payout for winners, negative
	// stake for losers).
	ApplyResolution(ctx context.Context, userID string, correct bool, earnings float64) error
	// Top returns the highest-earning users.
	Top(ctx context.Context, limit int) ([]UserStats, error)
}

// StoreSet bundles the stores participating in a single transaction.
type StoreSet struct {
	Markets     MarketStore
	Predictions PredictionStore
	Balances    BalanceStore
	Stats       StatsStore
}

// TxRunner executes fn against transaction-bound stores. If fn returns an
// error the transaction is rolled back and no write is visible.
type TxRunner interface {
	InTx(ctx context.Context, fn func(StoreSet) error) error
}
