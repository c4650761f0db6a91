package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarket_OpenForStaking(t *testing.T) {
	now := time.Now()
	winner := 1

	cases := []struct {
		name   string
		market Market
		want   bool
	}{
		{
			name:   "active before end date",
			market: Market{Status: MarketStatusActive, EndDate: now.Add(time.Hour)},
			want:   true,
		},
		{
			name:   "past end date",
			market: Market{Status: MarketStatusActive, EndDate: now.Add(-time.Hour)},
			want:   false,
		},
		{
			name:   "draft",
			market: Market{Status: MarketStatusDraft, EndDate: now.Add(time.Hour)},
			want:   false,
		},
		{
			name:   "cancelled",
			market: Market{Status: MarketStatusCancelled, EndDate: now.Add(time.Hour)},
			want:   false,
		},
		{
			name: "winner already set",
			market: Market{
				Status: MarketStatusActive, EndDate: now.Add(time.Hour),
				ResolvedOutcomeID: &winner,
			},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.market.OpenForStaking(now))
		})
	}
}

func TestMarket_HasOutcome(t *testing.T) {
	m := Market{Outcomes: []Outcome{{ID: 1}, {ID: 2}}}

	assert.True(t, m.HasOutcome(1))
	assert.True(t, m.HasOutcome(2))
	assert.False(t, m.HasOutcome(3))
	assert.False(t, m.HasOutcome(0))
}

func TestPrediction_Won(t *testing.T) {
	won := Prediction{Status: PredictionStatusWon}
	redeemed := Prediction{Status: PredictionStatusRedeemed}
	lost := Prediction{Status: PredictionStatusLost}
	active := Prediction{Status: PredictionStatusActive}

	assert.True(t, won.Won())
	assert.True(t, redeemed.Won())
	assert.False(t, lost.Won())
	assert.False(t, active.Won())
}

func TestUserStats_Accuracy(t *testing.T) {
	assert.Equal(t, 0, (&UserStats{}).Accuracy())
	assert.Equal(t, 50, (&UserStats{TotalPredictions: 2, CorrectPredictions: 1}).Accuracy())
	assert.Equal(t, 67, (&UserStats{TotalPredictions: 3, CorrectPredictions: 2}).Accuracy())
	assert.Equal(t, 100, (&UserStats{TotalPredictions: 5, CorrectPredictions: 5}).Accuracy())
}
