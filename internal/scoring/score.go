// Package scoring computes the reputation and protection scores from review
// aggregates. All functions are pure.
package scoring

import (
	"math"
	"time"

	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// Band is the traffic-light classification of a reputation score.
type Band string

// Reputation bands.
const (
	BandRed    Band = "red"
	BandYellow Band = "yellow"
	BandGreen  Band = "green"
)

const (
	volumeCap  = 50
	recencyCap = 5
)

// Config holds the reputation and compliance parameters.
type Config struct {
	RecentWindow         time.Duration
	TopicMinReviews      int
	TopicSampleSize      int
	ResponseRateTarget   int
	SuspiciousShareLimit int
	StaleCaseAfter       time.Duration
}

// Snapshot is a reputation score computed on demand. When InsufficientData
// is set, Score is nil and Band is empty: no reviews is not a zero score.
type Snapshot struct {
	Score            *int `json:"score"`
	Band             Band `json:"band,omitempty"`
	InsufficientData bool `json:"insufficient_data"`
}

// Require returns the score, or an InsufficientData error when there is none.
func (s Snapshot) Require() (int, error) {
	if s.InsufficientData || s.Score == nil {
		return 0, apperrors.InsufficientData("reputation score requires at least one review")
	}
	return *s.Score, nil
}

// ComputeReputationScore combines rating, volume, sentiment and recency into
// a 0-100 score. Inputs outside their natural ranges are clamped first.
func ComputeReputationScore(avgRating float64, totalReviews int, positiveSentimentPct float64, reviewsInLastWindow int) Snapshot {
	if totalReviews <= 0 {
		return Snapshot{InsufficientData: true}
	}

	avgRating = clampFloat(avgRating, 0, 5)
	positiveSentimentPct = clampFloat(positiveSentimentPct, 0, 100)
	if reviewsInLastWindow < 0 {
		reviewsInLastWindow = 0
	}

	base := avgRating / 5 * 50
	volume := float64(min(totalReviews, volumeCap)) / volumeCap * 20
	sentiment := positiveSentimentPct / 100 * 20
	recency := float64(min(reviewsInLastWindow, recencyCap)) / recencyCap * 10

	score := int(math.Round(base + volume + sentiment + recency))
	score = max(0, min(100, score))
	return Snapshot{Score: &score, Band: BandFor(score)}
}

// BandFor classifies a score: below 40 red, 40 to 70 yellow, above 70 green.
func BandFor(score int) Band {
	switch {
	case score < 40:
		return BandRed
	case score <= 70:
		return BandYellow
	default:
		return BandGreen
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
