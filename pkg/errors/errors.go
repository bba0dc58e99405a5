// Package errors defines the error vocabulary shared by services, repositories
// and handlers, and how each kind maps onto an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrServiceUnavail    = errors.New("service unavailable")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStaleWrite        = errors.New("stale write")
	ErrConfiguration     = errors.New("configuration error")
)

// kinds holds the code and status of every sentinel, in match order.
var kinds = []struct {
	sentinel error
	code     string
	status   int
}{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict},
	{ErrStaleWrite, "STALE_WRITE", http.StatusConflict},
	{ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{ErrConflict, "CONFLICT", http.StatusConflict},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
	{ErrConfiguration, "CONFIGURATION_ERROR", http.StatusBadRequest},
	{ErrInsufficientData, "INSUFFICIENT_DATA", http.StatusUnprocessableEntity},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
}

// AppError is an error the HTTP layer can render verbatim.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Status  int               `json:"-"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(sentinel error, message string) *AppError {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
		}
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Err: sentinel}
}

// NotFound reports a missing resource as a 404.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists reports a duplicate on a unique field as a 409.
func AlreadyExists(resource, field, value string) *AppError {
	return newAppError(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

// InvalidInput reports a malformed request as a 400.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// Conflict reports a request that contradicts the resource's state as a 409.
func Conflict(message string) *AppError {
	return newAppError(ErrConflict, message)
}

// ServiceUnavailable reports a collaborator that is down or whose breaker is open.
func ServiceUnavailable(message string) *AppError {
	return newAppError(ErrServiceUnavail, message)
}

// InsufficientData reports a computation below its minimum sample.
func InsufficientData(message string) *AppError {
	return newAppError(ErrInsufficientData, message)
}

// InvalidTransition reports an action the current stage does not allow. The
// stage and action are echoed back in Details.
func InvalidTransition(from, action string) *AppError {
	e := newAppError(ErrInvalidTransition, fmt.Sprintf("action %q is not permitted from stage %q", action, from))
	e.Details = map[string]string{"from_stage": from, "action": action}
	return e
}

// StaleWrite reports a lost compare-and-set. The caller re-reads and retries.
func StaleWrite(resource, id string) *AppError {
	return newAppError(ErrStaleWrite, fmt.Sprintf("%s %s was modified concurrently; re-read and retry", resource, id))
}

// ConfigurationError reports malformed thresholds or targets.
func ConfigurationError(message string) *AppError {
	return newAppError(ErrConfiguration, message)
}

// HTTPStatus prefers an AppError's own status, then the first sentinel in the
// chain, then 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}
