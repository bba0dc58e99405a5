// Package logger builds the JSON slog logger and carries request-scoped
// identifiers through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	actorIDKey
	businessIDKey
	loggerKey
)

// fields lists the context values WithContext copies into log records.
var fields = []struct {
	key  ctxKey
	attr string
}{
	{correlationIDKey, "correlation_id"},
	{actorIDKey, "actor_id"},
	{businessIDKey, "business_id"},
}

// New logs JSON to stdout.
func New(service, level string) *slog.Logger {
	return NewWithWriter(service, level, os.Stdout)
}

// NewWithWriter logs JSON to w at level (debug, info, warn or error; anything
// else means info). Debug logging adds source locations.
func NewWithWriter(service, level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug})
	return slog.New(h).With(slog.String("service", service))
}

func value(ctx context.Context, k ctxKey) string {
	s, _ := ctx.Value(k).(string)
	return s
}

// WithCorrelationID tags ctx with the ID that ties a request to the events it
// produces.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string { return value(ctx, correlationIDKey) }

// WithActorID tags ctx with the staff member or component acting.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// ActorIDFromContext returns the actor or "".
func ActorIDFromContext(ctx context.Context) string { return value(ctx, actorIDKey) }

// WithBusinessID tags ctx with the business being operated on.
func WithBusinessID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, businessIDKey, id)
}

// BusinessIDFromContext returns the business or "".
func BusinessIDFromContext(ctx context.Context) string { return value(ctx, businessIDKey) }

// NewContext stores l in ctx.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext adds the identifiers found in ctx, and the active span, to l.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	var attrs []any
	for _, f := range fields {
		if v := value(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.attr, v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
