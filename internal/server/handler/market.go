package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/oppredict/oppredict/internal/domain"
	"github.com/oppredict/oppredict/internal/service"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, creatorID string, in service.CreateMarketInput) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id, callerID string) error
	Related(ctx context.Context, id string, limit int) ([]service.RelatedMarket, error)
}

// SettlementService defines the resolve operation the market handler needs.
type SettlementService interface {
	Resolve(ctx context.Context, marketID string, winningOutcomeID int, resolverID string) (domain.Market, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets    MarketService
	settlement SettlementService
	logger     *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given services and
// logger.
func NewMarketHandler(markets MarketService, settlement SettlementService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:    markets,
		settlement: settlement,
		logger:     logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with optional status/category filters.
// GET /api/markets?status=active&category=politics&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	filter := domain.MarketFilter{
		Status:   domain.MarketStatus(r.URL.Query().Get("status")),
		Category: r.URL.Query().Get("category"),
		ListOpts: opts,
	}

	markets, err := h.markets.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// createMarketRequest is the payload for creating a market.
type createMarketRequest struct {
	Question    string    `json:"question" validate:"required,min=10,max=500"`
	Description string    `json:"description" validate:"max=5000"`
	Type        string    `json:"type" validate:"required,oneof=binary multiple"`
	Outcomes    []string  `json:"outcomes" validate:"required,min=2,max=20,dive,required,max=100"`
	Category    string    `json:"category" validate:"max=100"`
	EndDate     time.Time `json:"endDate" validate:"required"`
}

// CreateMarket creates a new market owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createMarketRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	market, err := h.markets.Create(r.Context(), user.ID, service.CreateMarketInput{
		Question:    req.Question,
		Description: req.Description,
		Type:        domain.MarketType(req.Type),
		Outcomes:    req.Outcomes,
		Category:    req.Category,
		EndDate:     req.EndDate,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// RelatedMarkets returns markets similar to the given one.
// GET /api/markets/{id}/related?limit=5
func (h *MarketHandler) RelatedMarkets(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	related, err := h.markets.Related(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"related": related})
}

// resolveMarketRequest is the payload for resolving a market.
type resolveMarketRequest struct {
	WinningOutcomeID int `json:"winningOutcomeId" validate:"required,min=1"`
}

// resolveMarketResponse reports a successful settlement.
type resolveMarketResponse struct {
	Success  bool    `json:"success"`
	AdminFee float64 `json:"adminFee"`
}

// ResolveMarket declares the winning outcome and settles all predictions.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveMarketRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	market, err := h.settlement.Resolve(r.Context(), id, req.WinningOutcomeID, user.ID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveMarketResponse{
		Success:  true,
		AdminFee: market.AdminFee,
	})
}

// DeleteMarket removes a market.
// DELETE /api/markets/{id}
func (h *MarketHandler) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if err := h.markets.Delete(r.Context(), id, user.ID); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
