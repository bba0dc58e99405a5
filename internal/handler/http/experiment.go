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

// ExperimentHandler handles HTTP requests for message experiment endpoints.
type ExperimentHandler struct {
	service *service.ExperimentService
	logger  *slog.Logger
}

// NewExperimentHandler creates a new experiment HTTP handler.
func NewExperimentHandler(svc *service.ExperimentService, logger *slog.Logger) *ExperimentHandler {
	return &ExperimentHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateExperimentRequest is the JSON request body for starting an experiment.
type CreateExperimentRequest struct {
	BusinessID  string `json:"business_id" validate:"required,max=128"`
	Name        string `json:"name" validate:"required,min=1,max=255"`
	MessageA    string `json:"message_a" validate:"required,max=2000"`
	MessageB    string `json:"message_b" validate:"required,max=2000"`
	AutoPromote *bool  `json:"auto_promote"`
}

// RecordSendRequest names the variant a request was sent with. An empty
// variant lets the experiment choose.
type RecordSendRequest struct {
	Variant string `json:"variant" validate:"omitempty,oneof=A B"`
}

// RecordConversionRequest names the variant a review came from.
type RecordConversionRequest struct {
	Variant string `json:"variant" validate:"required,oneof=A B"`
}

// --- Handlers ---

// CreateExperiment handles POST /api/v1/experiments
func (h *ExperimentHandler) CreateExperiment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateExperimentRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	e, err := h.service.CreateExperiment(r.Context(), &service.CreateExperimentInput{
		BusinessID:  req.BusinessID,
		Name:        req.Name,
		MessageA:    req.MessageA,
		MessageB:    req.MessageB,
		AutoPromote: req.AutoPromote,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: e})
}

// ListExperiments handles GET /api/v1/businesses/{businessID}/experiments
func (h *ExperimentHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListExperiments(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: list})
}

// GetExperiment handles GET /api/v1/experiments/{id}
func (h *ExperimentHandler) GetExperiment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	e, err := h.service.GetExperiment(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: e})
}

// GetEvaluation handles GET /api/v1/experiments/{id}/evaluation
func (h *ExperimentHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	view, err := h.service.Evaluate(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// RecordSend handles POST /api/v1/experiments/{id}/sends
func (h *ExperimentHandler) RecordSend(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	// Without a body the variant is assigned by traffic split.
	var req RecordSendRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, validator.ErrEmptyBody) {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.RecordSend(r.Context(), id.String(), req.Variant)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// RecordConversion handles POST /api/v1/experiments/{id}/conversions
func (h *ExperimentHandler) RecordConversion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req RecordConversionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	view, err := h.service.RecordConversion(r.Context(), id.String(), req.Variant)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// Stop handles POST /api/v1/experiments/{id}/stop
func (h *ExperimentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	view, err := h.service.Stop(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}
