package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oppredict/oppredict/internal/domain"
)

// BalanceStore defines the balance read the user handler needs.
type BalanceStore interface {
	Get(ctx context.Context, userID string) (domain.UserBalance, error)
}

// StatsStore defines the stats read the user handler needs.
type StatsStore interface {
	Get(ctx context.Context, userID string) (domain.UserStats, error)
}

// LeaderboardService defines the ranked read the leaderboard endpoint needs.
type LeaderboardService interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// UserHandler serves balance, stats, and leaderboard endpoints.
type UserHandler struct {
	balances    BalanceStore
	stats       StatsStore
	leaderboard LeaderboardService
	logger      *slog.Logger
}

// NewUserHandler creates a UserHandler with the given dependencies.
func NewUserHandler(balances BalanceStore, stats StatsStore, leaderboard LeaderboardService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		balances:    balances,
		stats:       stats,
		leaderboard: leaderboard,
		logger:      logger,
	}
}

// GetBalance returns the caller's available balance.
// GET /api/users/me/balance
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	balance, err := h.balances.Get(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, balance)
}

// statsResponse augments raw stats with the derived accuracy percentage.
type statsResponse struct {
	domain.UserStats
	Accuracy int `json:"accuracy"`
}

// GetStats returns the caller's prediction aggregates.
// GET /api/users/me/stats
func (h *UserHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	stats, err := h.stats.Get(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		UserStats: stats,
		Accuracy:  stats.Accuracy(),
	})
}

// GetLeaderboard returns the top earners.
// GET /api/leaderboard?limit=10
func (h *UserHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.leaderboard.Top(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}
