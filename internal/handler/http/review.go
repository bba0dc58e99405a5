package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/03aar/review-sub000/internal/service"
	"github.com/03aar/review-sub000/pkg/httputil"
	"github.com/03aar/review-sub000/pkg/validator"
)

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	reviews  *service.ReviewService
	recovery *service.RecoveryService
	logger   *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(reviews *service.ReviewService, recovery *service.RecoveryService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews:  reviews,
		recovery: recovery,
		logger:   logger,
	}
}

// --- Request DTOs ---

// IngestReviewRequest is the JSON request body for ingesting a review.
type IngestReviewRequest struct {
	ID                   string     `json:"id" validate:"max=128"`
	BusinessID           string     `json:"business_id" validate:"required,max=128"`
	Rating               int        `json:"rating" validate:"required,gte=1,lte=5"`
	Sentiment            string     `json:"sentiment" validate:"omitempty,oneof=positive neutral negative"`
	Text                 string     `json:"text" validate:"max=10000"`
	Platform             string     `json:"platform" validate:"omitempty,oneof=google yelp facebook other"`
	AuthorAccountAgeDays *int       `json:"author_account_age_days" validate:"omitempty,gte=0"`
	CategoryMatch        *bool      `json:"category_match"`
	PostedToPlatform     bool       `json:"posted_to_platform"`
	CreatedAt            *time.Time `json:"created_at"`
}

// RespondRequest is the JSON request body for responding to a review.
type RespondRequest struct {
	Action          string `json:"action" validate:"required,oneof=approve edit regenerate"`
	Text            string `json:"text" validate:"max=5000"`
	Hint            string `json:"hint" validate:"max=1000"`
	Actor           string `json:"actor"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,gte=1"`
}

// --- Handlers ---

// IngestReview handles POST /api/v1/reviews
func (h *ReviewHandler) IngestReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req IngestReviewRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := &service.IngestReviewInput{
		ID:                   req.ID,
		BusinessID:           req.BusinessID,
		Rating:               req.Rating,
		Sentiment:            req.Sentiment,
		Text:                 req.Text,
		Platform:             req.Platform,
		AuthorAccountAgeDays: req.AuthorAccountAgeDays,
		CategoryMatch:        req.CategoryMatch,
		PostedToPlatform:     req.PostedToPlatform,
	}
	if req.CreatedAt != nil {
		input.CreatedAt = *req.CreatedAt
	}

	result, err := h.reviews.Ingest(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: result})
}

// GetReview handles GET /api/v1/reviews/{id}
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviews.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// Respond handles POST /api/v1/reviews/{id}/respond
func (h *ReviewHandler) Respond(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req RespondRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	result, err := h.recovery.Respond(r.Context(), &service.RespondInput{
		ReviewID:        chi.URLParam(r, "id"),
		Action:          req.Action,
		Text:            req.Text,
		Hint:            req.Hint,
		Actor:           actorOf(r, req.Actor),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
