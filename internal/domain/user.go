package domain

import (
	"math"
	"time"
)

// UserStats is the per-user aggregate behind the leaderboard. TotalEarnings
// is signed: lost stakes subtract, payouts add.
type UserStats struct {
	UserID             string    `json:"userId"`
	TotalPredictions   int       `json:"totalPredictions"`
	CorrectPredictions int       `json:"correctPredictions"`
	TotalStaked        float64   `json:"totalStaked"`
	TotalEarnings      float64   `json:"totalEarnings"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Accuracy returns the percentage of correct predictions, rounded to the
// nearest whole percent. Zero when the user has no resolved predictions.
func (s *UserStats) Accuracy() int {
	if s.TotalPredictions == 0 {
		return 0
	}
	return int(math.Round(float64(s.CorrectPredictions) / float64(s.TotalPredictions) * 100))
}

// UserBalance is a user's available cash balance.
type UserBalance struct {
	UserID    string    `json:"userId"`
	Available float64   `json:"available"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LeaderboardEntry is one row of the earnings leaderboard.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	UserID   string  `json:"userId"`
	Earnings float64 `json:"earnings"`
}
