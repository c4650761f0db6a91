package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/oppredict/oppredict/internal/domain"
)

// PredictionService defines the methods the prediction handler requires
// from the service layer.
type PredictionService interface {
	Place(ctx context.Context, marketID string, outcomeID int, userID string, amount float64) (domain.Prediction, error)
	Get(ctx context.Context, id string) (domain.Prediction, error)
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Prediction, error)
	ListByMarket(ctx context.Context, marketID string) ([]domain.Prediction, error)
	Redeem(ctx context.Context, predictionID, userID string) (domain.Prediction, error)
}

// PredictionHandler serves prediction-related HTTP endpoints.
type PredictionHandler struct {
	predictions PredictionService
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler with the given service
// and logger.
func NewPredictionHandler(predictions PredictionService, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictions: predictions,
		logger:      logger,
	}
}

// placePredictionRequest is the payload for staking on an outcome.
type placePredictionRequest struct {
	MarketID  string  `json:"marketId" validate:"required"`
	OutcomeID int     `json:"outcomeId" validate:"required,min=1"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

// PlacePrediction stakes the caller's funds on a market outcome.
// POST /api/predictions
func (h *PredictionHandler) PlacePrediction(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req placePredictionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	prediction, err := h.predictions.Place(r.Context(), req.MarketID, req.OutcomeID, user.ID, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, prediction)
}

// ListPredictions returns predictions for the caller, or for a market when
// the marketId query parameter is present.
// GET /api/predictions?marketId=...&limit=50&offset=0
func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if marketID := r.URL.Query().Get("marketId"); marketID != "" {
		predictions, err := h.predictions.ListByMarket(r.Context(), marketID)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions})
		return
	}

	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	predictions, err := h.predictions.ListByUser(r.Context(), user.ID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions})
}

// GetPrediction returns a single prediction by its ID.
// GET /api/predictions/{id}
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing prediction id")
		return
	}

	prediction, err := h.predictions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// RedeemPrediction claims the payout of a won prediction.
// POST /api/predictions/{id}/redeem
func (h *PredictionHandler) RedeemPrediction(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing prediction id")
		return
	}

	prediction, err := h.predictions.Redeem(r.Context(), id, user.ID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}
