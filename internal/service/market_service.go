package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/oppredict/oppredict/internal/domain"
)

// MarketService handles market CRUD, cache-aside reads, and related-market
// discovery.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache
	auth     domain.Authorizer
	bus      domain.SignalBus
	announce Announcer // optional
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
// announce may be nil when no notification channels are configured.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	auth domain.Authorizer,
	bus domain.SignalBus,
	announce Announcer,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		cache:    cache,
		auth:     auth,
		bus:      bus,
		announce: announce,
		logger:   logger,
	}
}

// CreateMarketInput carries the user-supplied fields for a new market.
type CreateMarketInput struct {
	Question    string
	Description string
	Type        domain.MarketType
	Outcomes    []string
	Category    string
	EndDate     time.Time
}

// Create validates the input and inserts a new active market. Outcome IDs
// are assigned sequentially from 1.
func (s *MarketService) Create(ctx context.Context, creatorID string, in CreateMarketInput) (domain.Market, error) {
	if len(in.Outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("%w: a market needs at least two outcomes", domain.ErrValidation)
	}
	if in.Type == domain.MarketTypeBinary && len(in.Outcomes) != 2 {
		return domain.Market{}, fmt.Errorf("%w: a binary market has exactly two outcomes", domain.ErrValidation)
	}
	if !in.EndDate.After(time.Now()) {
		return domain.Market{}, fmt.Errorf("%w: end date must be in the future", domain.ErrValidation)
	}

	seen := map[string]bool{}
	outcomes := make([]domain.Outcome, len(in.Outcomes))
	for i, name := range in.Outcomes {
		name = strings.TrimSpace(name)
		if name == "" {
			return domain.Market{}, fmt.Errorf("%w: outcome names must be non-empty", domain.ErrValidation)
		}
		if seen[strings.ToLower(name)] {
			return domain.Market{}, fmt.Errorf("%w: duplicate outcome %q", domain.ErrValidation, name)
		}
		seen[strings.ToLower(name)] = true
		outcomes[i] = domain.Outcome{ID: i + 1, Name: name}
	}

	market := domain.Market{
		ID:          uuid.New().String(),
		Question:    strings.TrimSpace(in.Question),
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		Outcomes:    outcomes,
		CreatorID:   creatorID,
		Category:    strings.TrimSpace(in.Category),
		EndDate:     in.EndDate,
		Status:      domain.MarketStatusActive,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("market: create: %w", err)
	}

	payload, err := json.Marshal(domain.MarketEvent{
		Type:     "created",
		MarketID: market.ID,
		At:       market.CreatedAt,
	})
	if err == nil {
		if err := s.bus.Publish(ctx, domain.ChannelMarkets, payload); err != nil {
			s.logger.WarnContext(ctx, "market: publish failed",
				slog.String("market_id", market.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.announce != nil {
		s.announce.MarketCreated(ctx, market)
	}

	return market, nil
}

// Get retrieves a market by ID, checking the cache first and falling back
// to the store on a miss.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market: get %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market: cache set failed",
			slog.String("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// List returns markets matching the filter.
func (s *MarketService) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("market: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market: count: %w", err)
	}
	return count, nil
}

// Delete removes a market. Predictions on it are intentionally left behind.
func (s *MarketService) Delete(ctx context.Context, id, callerID string) error {
	if err := s.auth.Authorize(ctx, callerID, domain.ActionDeleteMarket); err != nil {
		return err
	}
	if err := s.markets.Delete(ctx, id); err != nil {
		return fmt.Errorf("market: delete %q: %w", id, err)
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// RelatedMarket pairs a market with its similarity to a reference market.
type RelatedMarket struct {
	Market domain.Market `json:"market"`
	Score  float64       `json:"score"`
}

// Related returns up to limit active markets similar to the given one.
// Markets in the same category are related unconditionally; otherwise
// similarity is the Jaccard index over tokenized question+description
// text and must be positive.
func (s *MarketService) Related(ctx context.Context, id string, limit int) ([]RelatedMarket, error) {
	if limit <= 0 {
		limit = 5
	}

	ref, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	candidates, err := s.markets.List(ctx, domain.MarketFilter{Status: domain.MarketStatusActive})
	if err != nil {
		return nil, fmt.Errorf("market: related %q: %w", id, err)
	}

	refTokens := tokenize(ref.Question + " " + ref.Description)

	var related []RelatedMarket
	for _, c := range candidates {
		if c.ID == ref.ID {
			continue
		}

		score := jaccard(refTokens, tokenize(c.Question+" "+c.Description))
		sameCategory := ref.Category != "" && c.Category == ref.Category
		if !sameCategory && score == 0 {
			continue
		}
		if sameCategory && score < 1 {
			// Same category always qualifies; give it at least a floor so
			// it ranks above weak text-only matches.
			score = score/2 + 0.5
		}

		related = append(related, RelatedMarket{Market: c, Score: score})
	}

	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Score > related[j].Score
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// tokenize lowercases text and splits it into the set of words longer than
// two characters.
func tokenize(text string) map[string]bool {
	tokens := map[string]bool{}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		if len(w) > 2 {
			tokens[w] = true
		}
	}
	return tokens
}

// jaccard computes |a ∩ b| / |a ∪ b| over two token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
