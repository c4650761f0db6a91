package domain

import "time"

// Pub/sub channels carried by the SignalBus and bridged to WebSocket clients.
const (
	ChannelMarkets     = "markets"
	ChannelLeaderboard = "leaderboard"
)

// MarketEvent is published whenever a market's aggregates change or it is
// resolved.
type MarketEvent struct {
	Type             string    `json:"type"` // "stake" | "resolved" | "created"
	MarketID         string    `json:"marketId"`
	OutcomeID        int       `json:"outcomeId,omitempty"`
	Amount           float64   `json:"amount,omitempty"`
	PoolAmount       float64   `json:"poolAmount,omitempty"`
	ParticipantCount int       `json:"participantCount,omitempty"`
	At               time.Time `json:"at"`
}
