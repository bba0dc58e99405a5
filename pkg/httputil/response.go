// Package httputil renders the JSON envelope shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/03aar/review-sub000/pkg/errors"
	"github.com/03aar/review-sub000/pkg/logger"
	"github.com/03aar/review-sub000/pkg/pagination"
	"github.com/03aar/review-sub000/pkg/validator"
)

// Response wraps either a payload or an error, never both.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// sentinelCodes maps bare sentinels (wrapped without an AppError) to a code.
// An empty message keeps the wrapped error text.
var sentinelCodes = []struct {
	target  error
	code    string
	message string
}{
	{apperrors.ErrNotFound, "NOT_FOUND", "resource not found"},
	{apperrors.ErrAlreadyExists, "ALREADY_EXISTS", "resource already exists"},
	{apperrors.ErrStaleWrite, "STALE_WRITE", "resource was modified concurrently"},
	{apperrors.ErrInvalidInput, "INVALID_INPUT", ""},
	{apperrors.ErrInvalidTransition, "INVALID_TRANSITION", ""},
	{apperrors.ErrInsufficientData, "INSUFFICIENT_DATA", ""},
	{apperrors.ErrConfiguration, "CONFIGURATION_ERROR", ""},
	{apperrors.ErrConflict, "CONFLICT", ""},
	{apperrors.ErrServiceUnavail, "SERVICE_UNAVAILABLE", "a dependency is unavailable"},
}

// WriteJSON encodes v with the given status. Encoding errors are dropped
// because the header is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an error envelope. AppErrors keep their own code,
// message and details; wrapped sentinels get a fixed code; anything else is a
// logged 500 whose text never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	ctx := r.Context()
	body := &ErrorResponse{RequestID: logger.CorrelationIDFromContext(ctx)}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Code, body.Message, body.Details = appErr.Code, appErr.Message, appErr.Details
		WriteJSON(w, appErr.Status, Response{Error: body})
		return
	}

	status := apperrors.HTTPStatus(err)
	body.Code, body.Message = "INTERNAL_ERROR", "an internal error occurred"
	for _, s := range sentinelCodes {
		if errors.Is(err, s.target) {
			body.Code, body.Message = s.code, s.message
			if body.Message == "" {
				body.Message = err.Error()
			}
			break
		}
	}

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(ctx)
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(ctx, "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

// PaginatedResponse is one page of a list endpoint.
type PaginatedResponse[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// NewPaginatedResponse renders a nil slice as [].
func NewPaginatedResponse[T any](data []T, totalCount, page, perPage int) PaginatedResponse[T] {
	if data == nil {
		data = []T{}
	}
	pages := pagination.TotalPages(totalCount, perPage)
	return PaginatedResponse[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       page,
		PerPage:    perPage,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// WriteValidationError writes a 400. Validator failures carry per-field
// reasons keyed by JSON name.
func WriteValidationError(w http.ResponseWriter, err error) {
	body := &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		body.Code = "VALIDATION_ERROR"
		body.Message = "request validation failed"
		body.Fields = valErr.Fields()
	}
	WriteJSON(w, http.StatusBadRequest, Response{Error: body})
}

// ParseUUID parses a path parameter. On failure it has already written a 400
// INVALID_PARAMETER and the caller should return.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err == nil {
		return id, true
	}
	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_PARAMETER", Message: "invalid UUID: " + param},
	})
	return uuid.Nil, false
}
