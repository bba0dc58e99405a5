// Package platform holds the black-box collaborators of the recovery
// pipeline: a response drafter and a review-platform poster.
package platform

import (
	"context"

	"github.com/03aar/review-sub000/internal/domain"
)

// DraftRequest asks for a response to a review.
type DraftRequest struct {
	ReviewID   string `json:"review_id"`
	BusinessID string `json:"business_id"`
	Rating     int    `json:"rating"`
	Text       string `json:"text"`
	// Hint is optional staff guidance for regeneration.
	Hint string `json:"hint,omitempty"`
}

// PostRequest publishes a response on the review's platform.
type PostRequest struct {
	ReviewID string `json:"review_id"`
	Platform string `json:"platform"`
	Response string `json:"response"`
	Actor    string `json:"actor"`
}

// Drafter generates response text for a review.
type Drafter interface {
	Name() string
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// Poster posts a response on the platform the review came from.
type Poster interface {
	Name() string
	Post(ctx context.Context, req PostRequest) error
}

// NewDraftRequest builds a draft request for review.
func NewDraftRequest(review *domain.Review, hint string) DraftRequest {
	return DraftRequest{
		ReviewID:   review.ID,
		BusinessID: review.BusinessID,
		Rating:     review.Rating,
		Text:       review.Text,
		Hint:       hint,
	}
}
