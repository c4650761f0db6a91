package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oppredict/oppredict/internal/domain"
)

// memState is the in-memory backing store shared by the fake store
// implementations. Tests exercise the services against it instead of a real
// database.
type memState struct {
	mu           sync.Mutex
	markets      map[string]domain.Market
	participants map[string]map[string]bool // marketID -> userIDs
	predictions  map[string]domain.Prediction
	balances     map[string]float64
	stats        map[string]domain.UserStats
}

func newMemState() *memState {
	return &memState{
		markets:      map[string]domain.Market{},
		participants: map[string]map[string]bool{},
		predictions:  map[string]domain.Prediction{},
		balances:     map[string]float64{},
		stats:        map[string]domain.UserStats{},
	}
}

func (s *memState) storeSet() domain.StoreSet {
	return domain.StoreSet{
		Markets:     &memMarketStore{s: s},
		Predictions: &memPredictionStore{s: s},
		Balances:    &memBalanceStore{s: s},
		Stats:       &memStatsStore{s: s},
	}
}

// snapshot deep-copies the state so the fake transaction runner can roll
// back on error.
func (s *memState) snapshot() *memState {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := newMemState()
	for k, v := range s.markets {
		v.Outcomes = append([]domain.Outcome(nil), v.Outcomes...)
		cp.markets[k] = v
	}
	for k, users := range s.participants {
		cp.participants[k] = map[string]bool{}
		for u := range users {
			cp.participants[k][u] = true
		}
	}
	for k, v := range s.predictions {
		cp.predictions[k] = v
	}
	for k, v := range s.balances {
		cp.balances[k] = v
	}
	for k, v := range s.stats {
		cp.stats[k] = v
	}
	return cp
}

func (s *memState) restore(from *memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets = from.markets
	s.participants = from.participants
	s.predictions = from.predictions
	s.balances = from.balances
	s.stats = from.stats
}

// memTx implements domain.TxRunner with rollback semantics: if fn fails, the
// state is restored to what it was before fn ran.
type memTx struct {
	s *memState
}

func (t *memTx) InTx(_ context.Context, fn func(domain.StoreSet) error) error {
	before := t.s.snapshot()
	if err := fn(t.s.storeSet()); err != nil {
		t.s.restore(before)
		return err
	}
	return nil
}

// --- MarketStore ---

type memMarketStore struct {
	s *memState
}

func (m *memMarketStore) Create(_ context.Context, market domain.Market) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.markets[market.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.s.markets[market.ID] = market
	return nil
}

func (m *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	market, ok := m.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return market, nil
}

func (m *memMarketStore) List(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []domain.Market
	for _, market := range m.s.markets {
		if f.Status != "" && market.Status != f.Status {
			continue
		}
		if f.Category != "" && market.Category != f.Category {
			continue
		}
		out = append(out, market)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memMarketStore) Update(_ context.Context, market domain.Market) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.markets[market.ID]; !ok {
		return domain.ErrNotFound
	}
	m.s.markets[market.ID] = market
	return nil
}

func (m *memMarketStore) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.markets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.s.markets, id)
	return nil
}

func (m *memMarketStore) Count(_ context.Context) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return int64(len(m.s.markets)), nil
}

func (m *memMarketStore) ApplyStake(_ context.Context, marketID string, outcomeID int, userID string, amount float64) (domain.StakeApplied, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	market, ok := m.s.markets[marketID]
	if !ok {
		return domain.StakeApplied{}, domain.ErrNotFound
	}

	users := m.s.participants[marketID]
	if users == nil {
		users = map[string]bool{}
		m.s.participants[marketID] = users
	}
	newParticipant := !users[userID]
	users[userID] = true

	market.PoolAmount += amount
	if newParticipant {
		market.ParticipantCount++
	}
	outcomes := append([]domain.Outcome(nil), market.Outcomes...)
	for i := range outcomes {
		if outcomes[i].ID == outcomeID {
			outcomes[i].Votes++
			outcomes[i].Amount += amount
		}
	}
	market.Outcomes = outcomes
	m.s.markets[marketID] = market

	return domain.StakeApplied{NewParticipant: newParticipant}, nil
}

func (m *memMarketStore) ApplyResolution(_ context.Context, marketID string, res domain.MarketResolution) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	market, ok := m.s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if market.ResolvedOutcomeID != nil {
		return domain.ErrAlreadyResolved
	}

	outcomeID := res.OutcomeID
	resolvedAt := res.ResolvedAt
	market.ResolvedOutcomeID = &outcomeID
	market.ResolvedAt = &resolvedAt
	market.ResolvedBy = res.ResolvedBy
	market.AdminFee = res.AdminFee
	market.RemainingPot = res.RemainingPot
	market.TotalWinningAmount = res.TotalWinningAmount
	market.Status = domain.MarketStatusResolved
	m.s.markets[marketID] = market
	return nil
}

func (m *memMarketStore) ListResolvedBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []domain.Market
	for _, market := range m.s.markets {
		if market.ResolvedAt != nil && market.ResolvedAt.Before(before) {
			out = append(out, market)
		}
	}
	return out, nil
}

// --- PredictionStore ---

type memPredictionStore struct {
	s *memState
}

func (p *memPredictionStore) Create(_ context.Context, pred domain.Prediction) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.predictions[pred.ID]; ok {
		return domain.ErrAlreadyExists
	}
	p.s.predictions[pred.ID] = pred
	return nil
}

func (p *memPredictionStore) GetByID(_ context.Context, id string) (domain.Prediction, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pred, ok := p.s.predictions[id]
	if !ok {
		return domain.Prediction{}, domain.ErrNotFound
	}
	return pred, nil
}

func (p *memPredictionStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Prediction, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []domain.Prediction
	for _, pred := range p.s.predictions {
		if pred.UserID == userID {
			out = append(out, pred)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *memPredictionStore) ListByMarket(_ context.Context, marketID string) ([]domain.Prediction, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []domain.Prediction
	for _, pred := range p.s.predictions {
		if pred.MarketID == marketID {
			out = append(out, pred)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *memPredictionStore) Update(_ context.Context, pred domain.Prediction) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.predictions[pred.ID]; !ok {
		return domain.ErrNotFound
	}
	p.s.predictions[pred.ID] = pred
	return nil
}

func (p *memPredictionStore) ApplySettlement(_ context.Context, set domain.PredictionSettlement) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pred, ok := p.s.predictions[set.PredictionID]
	if !ok || pred.Status != domain.PredictionStatusActive {
		return domain.ErrNotFound
	}
	payout := set.Payout
	resolvedAt := set.ResolvedAt
	pred.Status = set.Status
	pred.PotentialPayout = &payout
	pred.ResolvedAt = &resolvedAt
	p.s.predictions[set.PredictionID] = pred
	return nil
}

func (p *memPredictionStore) ApplyRedemption(_ context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pred, ok := p.s.predictions[id]
	if !ok || pred.Status != domain.PredictionStatusWon {
		return domain.ErrNotRedeemable
	}
	pred.Status = domain.PredictionStatusRedeemed
	p.s.predictions[id] = pred
	return nil
}

func (p *memPredictionStore) Delete(_ context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.predictions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(p.s.predictions, id)
	return nil
}

func (p *memPredictionStore) DeleteByMarket(_ context.Context, marketID string) (int64, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var n int64
	for id, pred := range p.s.predictions {
		if pred.MarketID == marketID {
			delete(p.s.predictions, id)
			n++
		}
	}
	return n, nil
}

// --- BalanceStore ---

type memBalanceStore struct {
	s *memState
}

func (b *memBalanceStore) Get(_ context.Context, userID string) (domain.UserBalance, error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return domain.UserBalance{UserID: userID, Available: b.s.balances[userID]}, nil
}

func (b *memBalanceStore) Credit(_ context.Context, userID string, amount float64) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	b.s.balances[userID] += amount
	return nil
}

func (b *memBalanceStore) Debit(_ context.Context, userID string, amount float64) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.s.balances[userID] < amount {
		return domain.ErrInsufficientBalance
	}
	b.s.balances[userID] -= amount
	return nil
}

// --- StatsStore ---

type memStatsStore struct {
	s *memState
}

func (st *memStatsStore) Get(_ context.Context, userID string) (domain.UserStats, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	stats := st.s.stats[userID]
	stats.UserID = userID
	return stats, nil
}

func (st *memStatsStore) ApplyStake(_ context.Context, userID string, amount float64) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	stats := st.s.stats[userID]
	stats.UserID = userID
	stats.TotalPredictions++
	stats.TotalStaked += amount
	st.s.stats[userID] = stats
	return nil
}

func (st *memStatsStore) ApplyResolution(_ context.Context, userID string, correct bool, earnings float64) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	stats := st.s.stats[userID]
	stats.UserID = userID
	if correct {
		stats.CorrectPredictions++
	}
	stats.TotalEarnings += earnings
	st.s.stats[userID] = stats
	return nil
}

func (st *memStatsStore) Top(_ context.Context, limit int) ([]domain.UserStats, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []domain.UserStats
	for id, stats := range st.s.stats {
		stats.UserID = id
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalEarnings > out[j].TotalEarnings })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Caches, locks, bus, auth ---

type fakeMarketCache struct {
	mu      sync.Mutex
	entries map[string]domain.Market
}

func newFakeMarketCache() *fakeMarketCache {
	return &fakeMarketCache{entries: map[string]domain.Market{}}
}

func (c *fakeMarketCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.ID] = m
	return nil
}

func (c *fakeMarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeMarketCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

type fakeLockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: map[string]bool{}}
}

func (l *fakeLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}, nil
}

type published struct {
	channel string
	payload []byte
}

type fakeSignalBus struct {
	mu        sync.Mutex
	published []published
}

func (b *fakeSignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, published{channel: channel, payload: payload})
	return nil
}

func (b *fakeSignalBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeSignalBus) onChannel(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.published {
		if p.channel == channel {
			n++
		}
	}
	return n
}

// fakeAuthorizer allows the user IDs in admins and rejects everyone else.
type fakeAuthorizer struct {
	admins map[string]bool
}

func newFakeAuthorizer(adminIDs ...string) *fakeAuthorizer {
	admins := map[string]bool{}
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &fakeAuthorizer{admins: admins}
}

func (a *fakeAuthorizer) Authorize(_ context.Context, userID string, _ domain.Action) error {
	if a.admins[userID] {
		return nil
	}
	return domain.ErrUnauthorized
}
