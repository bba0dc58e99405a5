package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/03aar/review-sub000/pkg/errors"
	"github.com/03aar/review-sub000/pkg/httputil"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 1 << 20

// ParseResponseError consumes and closes the body of a non-2xx response.
// Collaborators answer with the same envelope this service writes, so a
// structured body becomes an AppError tagged with the collaborator's name.
// Anything else, and any 5xx other than 503, is a plain error.
func ParseResponseError(resp *http.Response, collaborator string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s: status %d, body unreadable: %w", collaborator, resp.StatusCode, err)
	}

	var env httputil.Response
	if json.Unmarshal(raw, &env) != nil || env.Error == nil {
		return fmt.Errorf("%s: status %d: %s", collaborator, resp.StatusCode, raw)
	}
	return fromEnvelope(resp.StatusCode, env.Error, collaborator)
}

func fromEnvelope(status int, e *httputil.ErrorResponse, collaborator string) error {
	msg := collaborator + ": " + e.Message

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(collaborator, e.Message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusServiceUnavailable:
		unavailable := apperrors.ServiceUnavailable(msg)
		unavailable.Code = e.Code
		return unavailable
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: status %d %s: %s", collaborator, status, e.Code, e.Message)
	}
	return &apperrors.AppError{Code: e.Code, Message: msg, Status: status}
}
