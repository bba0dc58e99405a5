package domain

import (
	"time"
)

// Sentiment constants.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Platform constants.
const (
	PlatformGoogle   = "google"
	PlatformYelp     = "yelp"
	PlatformFacebook = "facebook"
	PlatformOther    = "other"
)

// Flag reasons attached by the authenticity heuristics.
const (
	FlagNewAccount       = "new_account"
	FlagGenericText      = "generic_text"
	FlagBurstMember      = "burst_member"
	FlagCategoryMismatch = "category_mismatch"
)

// Flag is a single authenticity signal and the weight it contributes.
type Flag struct {
	Reason string `json:"reason"`
	Weight int    `json:"weight"`
}

// Review is a customer review as ingested from a platform. Only
// PostedToPlatform changes after creation; flags and likelihood are attached
// once at ingestion and never alter the reviewer's content or rating.
type Review struct {
	ID                     string    `json:"id"`
	BusinessID             string    `json:"business_id"`
	Rating                 int       `json:"rating"`
	Sentiment              string    `json:"sentiment"`
	Text                   string    `json:"text"`
	Platform               string    `json:"platform"`
	AuthorAccountAgeDays   *int      `json:"author_account_age_days,omitempty"`
	CategoryMatch          *bool     `json:"category_match,omitempty"`
	PostedToPlatform       bool      `json:"posted_to_platform"`
	AuthenticityLikelihood *int      `json:"authenticity_likelihood"`
	Flags                  []Flag    `json:"flags"`
	CreatedAt              time.Time `json:"created_at"`
}

// IsNegative reports whether the review's rating is at or below threshold.
func (r *Review) IsNegative(threshold int) bool {
	return r.Rating <= threshold
}

// ValidSentiments returns the set of valid sentiments.
func ValidSentiments() []string {
	return []string{SentimentPositive, SentimentNeutral, SentimentNegative}
}

// IsValidSentiment checks whether s is a valid sentiment.
func IsValidSentiment(s string) bool {
	for _, v := range ValidSentiments() {
		if v == s {
			return true
		}
	}
	return false
}

// ValidPlatforms returns the set of platforms reviews are collected from.
func ValidPlatforms() []string {
	return []string{PlatformGoogle, PlatformYelp, PlatformFacebook, PlatformOther}
}

// IsValidPlatform checks whether p is a known platform.
func IsValidPlatform(p string) bool {
	for _, v := range ValidPlatforms() {
		if v == p {
			return true
		}
	}
	return false
}

// ReviewAggregate summarizes a business's review log for scoring.
type ReviewAggregate struct {
	TotalReviews  int     `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
	PositiveCount int     `json:"positive_count"`
	RecentCount   int     `json:"recent_count"`
}

// PositiveSentimentPct returns the share of positive reviews as a percentage.
func (a ReviewAggregate) PositiveSentimentPct() float64 {
	if a.TotalReviews == 0 {
		return 0
	}
	return float64(a.PositiveCount) / float64(a.TotalReviews) * 100
}

// LikelihoodBandCounts counts scored reviews per authenticity priority band.
type LikelihoodBandCounts struct {
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Informational int `json:"informational"`
}

// Total returns the number of scored reviews.
func (c LikelihoodBandCounts) Total() int {
	return c.High + c.Medium + c.Informational
}
