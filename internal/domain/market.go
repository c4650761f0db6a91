package domain

import "time"

// MarketType distinguishes two-outcome markets from multi-outcome ones.
type MarketType string

const (
	MarketTypeBinary   MarketType = "binary"
	MarketTypeMultiple MarketType = "multiple"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusDraft     MarketStatus = "draft"
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Outcome is one possible answer to a market's question. IDs are unique
// within their market; Votes and Amount accumulate as users stake.
type Outcome struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Votes  int     `json:"votes"`
	Amount float64 `json:"amount"`
}

// Market is a single prediction question with discrete possible outcomes.
//
// ResolvedOutcomeID is set at most once. A market in resolved status always
// has AdminFee, RemainingPot, and TotalWinningAmount populated.
type Market struct {
	ID               string       `json:"id"`
	Question         string       `json:"question"`
	Description      string       `json:"description"`
	Type             MarketType   `json:"type"`
	Outcomes         []Outcome    `json:"outcomes"`
	CreatorID        string       `json:"creatorId"`
	Category         string       `json:"category"`
	EndDate          time.Time    `json:"endDate"`
	Status           MarketStatus `json:"status"`
	PoolAmount       float64      `json:"poolAmount"`
	ParticipantCount int          `json:"participantCount"`

	ResolvedOutcomeID  *int       `json:"resolvedOutcomeId,omitempty"`
	ResolvedAt         *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy         string     `json:"resolvedBy,omitempty"`
	AdminFee           float64    `json:"adminFee,omitempty"`
	RemainingPot       float64    `json:"remainingPot,omitempty"`
	TotalWinningAmount float64    `json:"totalWinningAmount,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasOutcome reports whether the market declares an outcome with the given id.
func (m *Market) HasOutcome(outcomeID int) bool {
	for _, o := range m.Outcomes {
		if o.ID == outcomeID {
			return true
		}
	}
	return false
}

// Resolved reports whether a winning outcome has been declared.
func (m *Market) Resolved() bool {
	return m.ResolvedOutcomeID != nil
}

// OpenForStaking reports whether new predictions may be placed.
func (m *Market) OpenForStaking(now time.Time) bool {
	return m.Status == MarketStatusActive && !m.Resolved() && now.Before(m.EndDate)
}

// MarketResolution carries the settlement fields written when a market is
// resolved. The store applies it only if the market has no winner yet.
type MarketResolution struct {
	OutcomeID          int
	ResolvedAt         time.Time
	ResolvedBy         string
	AdminFee           float64
	RemainingPot       float64
	TotalWinningAmount float64
}
