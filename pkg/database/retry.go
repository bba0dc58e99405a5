package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// startupAttempts bounds how often connecting and migrating are tried before
// the service gives up and exits.
const startupAttempts = 3

// retryBaseWait is the first backoff; each further attempt doubles it.
var retryBaseWait = time.Second

// backoff returns the wait before retry n (0-based) with +/-25% jitter.
func backoff(n int) time.Duration {
	base := retryBaseWait << max(n, 0)
	spread := float64(base) / 4
	return base + time.Duration(spread*(2*rand.Float64()-1)) // #nosec G404 -- jitter only
}

// isTransient reports whether err is worth retrying at startup. Errors
// reported by the server itself (syntax, constraints) are permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	return errors.As(err, &connErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		pgconn.SafeToRetry(err)
}

// retry runs fn until it succeeds, returns an error retryable rejects, or
// startupAttempts is exhausted.
func retry(ctx context.Context, logger *slog.Logger, what string, retryable func(error) bool, fn func() error) error {
	var err error
	for n := 0; n < startupAttempts; n++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || n == startupAttempts-1 {
			break
		}

		wait := backoff(n)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", n+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	return err
}
