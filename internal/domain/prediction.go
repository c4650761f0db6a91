package domain

import "time"

// PredictionStatus represents the lifecycle state of a prediction.
//
// Predictions are created active, move to won or lost exactly once when
// their market resolves, and a won prediction moves to redeemed when the
// user claims the payout.
type PredictionStatus string

const (
	PredictionStatusActive    PredictionStatus = "active"
	PredictionStatusWon       PredictionStatus = "won"
	PredictionStatusLost      PredictionStatus = "lost"
	PredictionStatusRedeemed  PredictionStatus = "redeemed"
	PredictionStatusCancelled PredictionStatus = "cancelled"
)

// Prediction is one user's stake on one outcome of one market.
type Prediction struct {
	ID              string           `json:"id"`
	MarketID        string           `json:"marketId"`
	OutcomeID       int              `json:"outcomeId"`
	UserID          string           `json:"userId"`
	Amount          float64          `json:"amount"`
	Status          PredictionStatus `json:"status"`
	PotentialPayout *float64         `json:"potentialPayout,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	ResolvedAt      *time.Time       `json:"resolvedAt,omitempty"`
}

// Won reports whether the prediction ended on the winning outcome.
func (p *Prediction) Won() bool {
	return p.Status == PredictionStatusWon || p.Status == PredictionStatusRedeemed
}

// PredictionSettlement carries the per-prediction fields written during
// market settlement.
type PredictionSettlement struct {
	PredictionID string
	Status       PredictionStatus
	Payout       float64
	ResolvedAt   time.Time
}
