package http

import (
	"net/http"
	"strings"

	"github.com/03aar/review-sub000/pkg/httputil"
	"github.com/03aar/review-sub000/pkg/middleware"
)

// ContentTypeJSON rejects request bodies that are not application/json.
// Bodiless commands such as POST /experiments/{id}/stop pass through.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBody(r) && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "UNSUPPORTED_MEDIA_TYPE",
					Message: "Content-Type must be application/json",
				},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hasBody reports whether the request carries a body. Chunked requests report
// an unknown length and count as having one.
func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	default:
		return r.ContentLength > 0
	}
}

// actorOf returns the actor named in the request body, falling back to the
// actor header set by the upstream gateway.
func actorOf(r *http.Request, fromBody string) string {
	if a := strings.TrimSpace(fromBody); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get(middleware.ActorHeader))
}

// maxBodyBytes limits request bodies to 1 MB.
const maxBodyBytes = 1 << 20
