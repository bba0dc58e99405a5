package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/03aar/review-sub000/internal/service"
	"github.com/03aar/review-sub000/pkg/httputil"
	"github.com/03aar/review-sub000/pkg/validator"
)

// BusinessHandler serves the per-business read models and controls:
// analytics, reputation, crisis state and review-volume goals.
type BusinessHandler struct {
	analytics *service.AnalyticsService
	crisis    *service.CrisisService
	goals     *service.GoalService
	logger    *slog.Logger
}

// NewBusinessHandler creates a new business HTTP handler.
func NewBusinessHandler(analytics *service.AnalyticsService, crisis *service.CrisisService, goals *service.GoalService, logger *slog.Logger) *BusinessHandler {
	return &BusinessHandler{
		analytics: analytics,
		crisis:    crisis,
		goals:     goals,
		logger:    logger,
	}
}

// DismissCrisisRequest is the JSON request body for dismissing a crisis.
type DismissCrisisRequest struct {
	Actor string `json:"actor"`
}

// SetGoalRequest is the JSON request body for setting a monthly goal.
// Range checks happen in the service so they surface as configuration errors.
type SetGoalRequest struct {
	Target         int     `json:"target"`
	ConversionRate float64 `json:"conversion_rate"`
}

// GetAnalytics handles GET /api/v1/businesses/{businessID}/analytics
func (h *BusinessHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.analytics.Analytics(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: a})
}

// GetReputation handles GET /api/v1/businesses/{businessID}/reputation
func (h *BusinessHandler) GetReputation(w http.ResponseWriter, r *http.Request) {
	score, err := h.analytics.Reputation(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: score})
}

// GetCrisis handles GET /api/v1/businesses/{businessID}/crisis
func (h *BusinessHandler) GetCrisis(w http.ResponseWriter, r *http.Request) {
	state, err := h.crisis.Get(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// DismissCrisis handles POST /api/v1/businesses/{businessID}/crisis/dismiss
func (h *BusinessHandler) DismissCrisis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	// The body is optional; the actor header is enough.
	var req DismissCrisisRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, validator.ErrEmptyBody) {
		httputil.WriteValidationError(w, err)
		return
	}

	state, err := h.crisis.Dismiss(r.Context(), chi.URLParam(r, "businessID"), actorOf(r, req.Actor))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: state})
}

// SetGoal handles PUT /api/v1/businesses/{businessID}/goals/{period}
func (h *BusinessHandler) SetGoal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req SetGoalRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	g, err := h.goals.SetGoal(r.Context(), &service.SetGoalInput{
		BusinessID:     chi.URLParam(r, "businessID"),
		Period:         chi.URLParam(r, "period"),
		Target:         req.Target,
		ConversionRate: req.ConversionRate,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: g})
}

// GetForecast handles GET /api/v1/businesses/{businessID}/goals/{period}/forecast
func (h *BusinessHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	f, err := h.goals.Forecast(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "period"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: f})
}
