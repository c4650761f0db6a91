package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppredict/oppredict/internal/domain"
)

type marketFixture struct {
	state *memState
	cache *fakeMarketCache
	bus   *fakeSignalBus
	svc   *MarketService
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	state := newMemState()
	cache := newFakeMarketCache()
	bus := &fakeSignalBus{}
	svc := NewMarketService(
		&memMarketStore{s: state},
		cache,
		newFakeAuthorizer(adminID),
		bus,
		nil,
		discardLogger(),
	)
	return &marketFixture{state: state, cache: cache, bus: bus, svc: svc}
}

func validInput() CreateMarketInput {
	return CreateMarketInput{
		Question: "Who wins the cup?",
		Type:     domain.MarketTypeMultiple,
		Outcomes: []string{"Brazil", "France", "Spain"},
		Category: "sports",
		EndDate:  time.Now().Add(48 * time.Hour),
	}
}

func TestCreateMarket_Success(t *testing.T) {
	f := newMarketFixture(t)

	m, err := f.svc.Create(context.Background(), alice, validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, alice, m.CreatorID)
	assert.Equal(t, domain.MarketStatusActive, m.Status)
	require.Len(t, m.Outcomes, 3)
	assert.Equal(t, 1, m.Outcomes[0].ID)
	assert.Equal(t, 3, m.Outcomes[2].ID)
	assert.Equal(t, 1, f.bus.onChannel(domain.ChannelMarkets))
}

func TestCreateMarket_TooFewOutcomes(t *testing.T) {
	f := newMarketFixture(t)

	in := validInput()
	in.Outcomes = []string{"Only one"}
	_, err := f.svc.Create(context.Background(), alice, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateMarket_BinaryNeedsExactlyTwo(t *testing.T) {
	f := newMarketFixture(t)

	in := validInput()
	in.Type = domain.MarketTypeBinary
	_, err := f.svc.Create(context.Background(), alice, in)
	assert.ErrorIs(t, err, domain.ErrValidation)

	in.Outcomes = []string{"Yes", "No"}
	_, err = f.svc.Create(context.Background(), alice, in)
	assert.NoError(t, err)
}

func TestCreateMarket_DuplicateOutcomeNames(t *testing.T) {
	f := newMarketFixture(t)

	in := validInput()
	in.Outcomes = []string{"Yes", "yes", "No"}
	_, err := f.svc.Create(context.Background(), alice, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateMarket_PastEndDate(t *testing.T) {
	f := newMarketFixture(t)

	in := validInput()
	in.EndDate = time.Now().Add(-time.Hour)
	_, err := f.svc.Create(context.Background(), alice, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetMarket_CacheMissBackfills(t *testing.T) {
	f := newMarketFixture(t)
	f.state.markets["m1"] = domain.Market{ID: "m1", Question: "Q"}

	got, err := f.svc.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)

	cached, err := f.cache.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Q", cached.Question)
}

func TestGetMarket_CacheHitSkipsStore(t *testing.T) {
	f := newMarketFixture(t)
	require.NoError(t, f.cache.Set(context.Background(), domain.Market{ID: "m1", Question: "cached"}))

	got, err := f.svc.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Question)
}

func TestDeleteMarket_RequiresAdmin(t *testing.T) {
	f := newMarketFixture(t)
	f.state.markets["m1"] = domain.Market{ID: "m1"}

	err := f.svc.Delete(context.Background(), "m1", alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.svc.Delete(context.Background(), "m1", adminID)
	assert.NoError(t, err)
	assert.Empty(t, f.state.markets)
}

func TestRelated_SameCategoryAlwaysQualifies(t *testing.T) {
	f := newMarketFixture(t)
	f.state.markets["m1"] = domain.Market{
		ID: "m1", Question: "Who wins the election?",
		Category: "politics", Status: domain.MarketStatusActive,
	}
	f.state.markets["m2"] = domain.Market{
		ID: "m2", Question: "Completely different topic entirely",
		Category: "politics", Status: domain.MarketStatusActive,
	}

	related, err := f.svc.Related(context.Background(), "m1", 5)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "m2", related[0].Market.ID)
	assert.GreaterOrEqual(t, related[0].Score, 0.5)
}

func TestRelated_TextOverlapRanksHigher(t *testing.T) {
	f := newMarketFixture(t)
	f.state.markets["m1"] = domain.Market{
		ID: "m1", Question: "Will bitcoin reach 100k this year",
		Category: "crypto", Status: domain.MarketStatusActive,
	}
	f.state.markets["m2"] = domain.Market{
		ID: "m2", Question: "Will bitcoin reach 200k this year",
		Category: "crypto", Status: domain.MarketStatusActive,
	}
	f.state.markets["m3"] = domain.Market{
		ID: "m3", Question: "Will the weather improve",
		Category: "crypto", Status: domain.MarketStatusActive,
	}

	related, err := f.svc.Related(context.Background(), "m1", 5)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "m2", related[0].Market.ID)
	assert.Greater(t, related[0].Score, related[1].Score)
}

func TestRelated_NoOverlapNoCategory(t *testing.T) {
	f := newMarketFixture(t)
	f.state.markets["m1"] = domain.Market{
		ID: "m1", Question: "Will bitcoin reach 100k",
		Category: "crypto", Status: domain.MarketStatusActive,
	}
	f.state.markets["m2"] = domain.Market{
		ID: "m2", Question: "Who wins the election",
		Category: "politics", Status: domain.MarketStatusActive,
	}

	related, err := f.svc.Related(context.Background(), "m1", 5)
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Will BITCOIN reach 100k? Will it!")
	assert.True(t, tokens["will"])
	assert.True(t, tokens["bitcoin"])
	assert.True(t, tokens["reach"])
	assert.True(t, tokens["100k"])
	// Short words are dropped.
	assert.False(t, tokens["it"])
}

func TestJaccard(t *testing.T) {
	a := map[string]bool{"one": true, "two": true, "three": true}
	b := map[string]bool{"two": true, "three": true, "four": true}

	assert.InDelta(t, 0.5, jaccard(a, b), 0.0001)
	assert.Equal(t, 0.0, jaccard(a, map[string]bool{}))
	assert.Equal(t, 1.0, jaccard(a, a))
}
