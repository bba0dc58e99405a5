package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/03aar/review-sub000/pkg/logger"
)

// ActorHeader carries the staff member or upstream component behind a
// request. It is trusted as-is; authentication happens before the engine.
const ActorHeader = "X-Actor-ID"

// businessParam is the chi URL parameter naming the business in scope.
const businessParam = "businessID"

// RequestLogger stores a logger in the request context carrying whatever
// correlation, actor, business and trace identifiers are known. Mount it after
// RequestLogging and Tracing so those IDs are already set.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := scopeRequest(r)
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func scopeRequest(r *http.Request) context.Context {
	ctx := r.Context()
	if actor := r.Header.Get(ActorHeader); actor != "" {
		ctx = logger.WithActorID(ctx, actor)
	}
	if id := chi.URLParamFromCtx(ctx, businessParam); id != "" {
		ctx = logger.WithBusinessID(ctx, id)
	}
	return ctx
}
