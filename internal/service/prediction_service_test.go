package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oppredict/oppredict/internal/domain"
)

type predictionFixture struct {
	state *memState
	cache *fakeMarketCache
	bus   *fakeSignalBus
	locks *fakeLockManager
	svc   *PredictionService
}

func newPredictionFixture(t *testing.T) *predictionFixture {
	t.Helper()
	state := newMemState()
	cache := newFakeMarketCache()
	bus := &fakeSignalBus{}
	locks := newFakeLockManager()
	svc := NewPredictionService(
		state.storeSet(),
		&memTx{s: state},
		locks,
		cache,
		bus,
		discardLogger(),
	)
	return &predictionFixture{state: state, cache: cache, bus: bus, locks: locks, svc: svc}
}

func (f *predictionFixture) addMarket(id string) {
	f.state.markets[id] = domain.Market{
		ID:       id,
		Question: "Will it happen?",
		Type:     domain.MarketTypeBinary,
		Outcomes: []domain.Outcome{{ID: 1, Name: "Yes"}, {ID: 2, Name: "No"}},
		Status:   domain.MarketStatusActive,
		EndDate:  time.Now().Add(24 * time.Hour),
	}
}

func TestPlace_Success(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")
	f.state.balances[alice] = 100

	p, err := f.svc.Place(context.Background(), "m1", 1, alice, 30)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.PredictionStatusActive, p.Status)
	assert.Equal(t, 30.0, p.Amount)

	// Balance debited, pool and outcome aggregates updated.
	assert.Equal(t, 70.0, f.state.balances[alice])
	m := f.state.markets["m1"]
	assert.Equal(t, 30.0, m.PoolAmount)
	assert.Equal(t, 1, m.ParticipantCount)
	assert.Equal(t, 1, m.Outcomes[0].Votes)
	assert.Equal(t, 30.0, m.Outcomes[0].Amount)

	// Stats track the stake.
	assert.Equal(t, 1, f.state.stats[alice].TotalPredictions)
	assert.Equal(t, 30.0, f.state.stats[alice].TotalStaked)

	// A stake event went out.
	assert.Equal(t, 1, f.bus.onChannel(domain.ChannelMarkets))
}

func TestPlace_SecondStakeSameUserKeepsParticipantCount(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")
	f.state.balances[alice] = 100

	_, err := f.svc.Place(context.Background(), "m1", 1, alice, 30)
	require.NoError(t, err)
	_, err = f.svc.Place(context.Background(), "m1", 2, alice, 20)
	require.NoError(t, err)

	m := f.state.markets["m1"]
	assert.Equal(t, 50.0, m.PoolAmount)
	assert.Equal(t, 1, m.ParticipantCount)
}

func TestPlace_NonPositiveAmount(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")

	_, err := f.svc.Place(context.Background(), "m1", 1, alice, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Place(context.Background(), "m1", 1, alice, -5)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPlace_InsufficientBalance(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")
	f.state.balances[alice] = 10

	_, err := f.svc.Place(context.Background(), "m1", 1, alice, 30)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// Rolled back: no prediction, no pool change.
	assert.Empty(t, f.state.predictions)
	assert.Equal(t, 0.0, f.state.markets["m1"].PoolAmount)
	assert.Equal(t, 10.0, f.state.balances[alice])
}

func TestPlace_MarketClosed(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")
	f.state.balances[alice] = 100

	m := f.state.markets["m1"]
	m.EndDate = time.Now().Add(-time.Hour)
	f.state.markets["m1"] = m

	_, err := f.svc.Place(context.Background(), "m1", 1, alice, 30)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestPlace_ResolvedMarket(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")
	f.state.balances[alice] = 100

	m := f.state.markets["m1"]
	winner := 1
	m.ResolvedOutcomeID = &winner
	f.state.markets["m1"] = m

	_, err := f.svc.Place(context.Background(), "m1", 1, alice, 30)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestPlace_UnknownOutcome(t *testing.T) {
	f := newPredictionFixture(t)
	f.addMarket("m1")
	f.state.balances[alice] = 100

	_, err := f.svc.Place(context.Background(), "m1", 9, alice, 30)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestPlace_MarketNotFound(t *testing.T) {
	f := newPredictionFixture(t)

	_, err := f.svc.Place(context.Background(), "missing", 1, alice, 30)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRedeem_Success(t *testing.T) {
	f := newPredictionFixture(t)
	payout := 95.0
	f.state.predictions["p1"] = domain.Prediction{
		ID:              "p1",
		MarketID:        "m1",
		UserID:          alice,
		Status:          domain.PredictionStatusWon,
		PotentialPayout: &payout,
	}

	redeemed, err := f.svc.Redeem(context.Background(), "p1", alice)
	require.NoError(t, err)

	assert.Equal(t, domain.PredictionStatusRedeemed, redeemed.Status)
	assert.Equal(t, domain.PredictionStatusRedeemed, f.state.predictions["p1"].Status)
	assert.Equal(t, 95.0, f.state.balances[alice])
}

func TestRedeem_Twice(t *testing.T) {
	f := newPredictionFixture(t)
	payout := 95.0
	f.state.predictions["p1"] = domain.Prediction{
		ID:              "p1",
		UserID:          alice,
		Status:          domain.PredictionStatusWon,
		PotentialPayout: &payout,
	}

	_, err := f.svc.Redeem(context.Background(), "p1", alice)
	require.NoError(t, err)

	_, err = f.svc.Redeem(context.Background(), "p1", alice)
	assert.ErrorIs(t, err, domain.ErrNotRedeemable)
	assert.Equal(t, 95.0, f.state.balances[alice])
}

// staleWonReads serves a frozen won snapshot from GetByID while delegating
// writes, reproducing a competing redeemer that read the prediction before
// the first redemption committed.
type staleWonReads struct {
	domain.PredictionStore
	stale domain.Prediction
}

func (s staleWonReads) GetByID(context.Context, string) (domain.Prediction, error) {
	return s.stale, nil
}

type staleReadTx struct {
	s     *memState
	stale domain.Prediction
}

func (t *staleReadTx) InTx(_ context.Context, fn func(domain.StoreSet) error) error {
	before := t.s.snapshot()
	set := t.s.storeSet()
	set.Predictions = staleWonReads{PredictionStore: set.Predictions, stale: t.stale}
	if err := fn(set); err != nil {
		t.s.restore(before)
		return err
	}
	return nil
}

func TestRedeem_StaleWonReadCannotDoubleCredit(t *testing.T) {
	state := newMemState()
	payout := 95.0
	won := domain.Prediction{
		ID:              "p1",
		UserID:          alice,
		Status:          domain.PredictionStatusWon,
		PotentialPayout: &payout,
	}
	state.predictions["p1"] = won

	// Every transaction reads the prediction as still won, no matter what
	// is in the store. Only the guarded status transition can tell the two
	// attempts apart.
	svc := NewPredictionService(
		state.storeSet(),
		&staleReadTx{s: state, stale: won},
		newFakeLockManager(),
		newFakeMarketCache(),
		&fakeSignalBus{},
		discardLogger(),
	)

	_, err := svc.Redeem(context.Background(), "p1", alice)
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), "p1", alice)
	assert.ErrorIs(t, err, domain.ErrNotRedeemable)

	// The payout landed exactly once.
	assert.Equal(t, 95.0, state.balances[alice])
	assert.Equal(t, domain.PredictionStatusRedeemed, state.predictions["p1"].Status)
}

func TestRedeem_LostPrediction(t *testing.T) {
	f := newPredictionFixture(t)
	f.state.predictions["p1"] = domain.Prediction{
		ID:     "p1",
		UserID: alice,
		Status: domain.PredictionStatusLost,
	}

	_, err := f.svc.Redeem(context.Background(), "p1", alice)
	assert.ErrorIs(t, err, domain.ErrNotRedeemable)
}

func TestRedeem_OtherUsersPrediction(t *testing.T) {
	f := newPredictionFixture(t)
	payout := 95.0
	f.state.predictions["p1"] = domain.Prediction{
		ID:              "p1",
		UserID:          alice,
		Status:          domain.PredictionStatusWon,
		PotentialPayout: &payout,
	}

	// Another user's prediction looks like it does not exist.
	_, err := f.svc.Redeem(context.Background(), "p1", bob)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0.0, f.state.balances[bob])
}

func TestListByUser(t *testing.T) {
	f := newPredictionFixture(t)
	f.state.predictions["p1"] = domain.Prediction{ID: "p1", UserID: alice}
	f.state.predictions["p2"] = domain.Prediction{ID: "p2", UserID: bob}
	f.state.predictions["p3"] = domain.Prediction{ID: "p3", UserID: alice}

	got, err := f.svc.ListByUser(context.Background(), alice, domain.ListOpts{Limit: 50})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
