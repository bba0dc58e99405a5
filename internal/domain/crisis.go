package domain

import (
	"time"
)

// CrisisState is the review-bombing state of one business. Active follows the
// detection condition; Dismissed is an explicit staff override that lasts
// until the condition clears and later re-triggers.
type CrisisState struct {
	BusinessID       string     `json:"business_id"`
	Active           bool       `json:"active"`
	Dismissed        bool       `json:"dismissed"`
	NegativeCount24h int        `json:"negative_count_24h"`
	BaselineDailyAvg float64    `json:"baseline_daily_avg"`
	Ratio            float64    `json:"ratio"`
	TriggeredAt      *time.Time `json:"triggered_at,omitempty"`
	DismissedBy      string     `json:"dismissed_by,omitempty"`
	EvaluatedAt      time.Time  `json:"evaluated_at"`
}

// InCrisis reports whether downstream consumers should treat the business as
// under review-bombing.
func (s *CrisisState) InCrisis() bool {
	return s != nil && s.Active && !s.Dismissed
}
