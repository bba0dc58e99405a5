package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/service"
	"github.com/03aar/review-sub000/pkg/httputil"
	"github.com/03aar/review-sub000/pkg/pagination"
	"github.com/03aar/review-sub000/pkg/validator"
)

// RecoveryHandler handles HTTP requests for recovery case endpoints.
type RecoveryHandler struct {
	service *service.RecoveryService
	logger  *slog.Logger
}

// NewRecoveryHandler creates a new recovery case HTTP handler.
func NewRecoveryHandler(svc *service.RecoveryService, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{
		service: svc,
		logger:  logger,
	}
}

// TransitionRequest is the JSON request body for moving a recovery case.
type TransitionRequest struct {
	Action          string `json:"action" validate:"required,oneof=respond follow_up mark_returned rating_revised dismiss reset"`
	Actor           string `json:"actor"`
	ExpectedVersion *int   `json:"expected_version" validate:"omitempty,gte=1"`
}

// ListCases handles GET /api/v1/recovery-cases
func (h *RecoveryHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	q := r.URL.Query()

	cases, total, err := h.service.ListCases(r.Context(), domain.RecoveryCaseFilter{
		BusinessID: q.Get("business_id"),
		Stage:      domain.Stage(q.Get("stage")),
		Page:       params.Page,
		PerPage:    params.PerPage,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(cases, total, params.Page, params.PerPage))
}

// GetCase handles GET /api/v1/recovery-cases/{id}
func (h *RecoveryHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	c, err := h.service.GetCase(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: c})
}

// Transition handles POST /api/v1/recovery-cases/{id}/transitions
func (h *RecoveryHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req TransitionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	c, err := h.service.Transition(r.Context(), &service.TransitionInput{
		CaseID:          id.String(),
		Action:          req.Action,
		Actor:           actorOf(r, req.Actor),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: c})
}
