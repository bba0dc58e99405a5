package database

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFastRetry(t *testing.T) {
	t.Helper()
	prev := retryBaseWait
	retryBaseWait = time.Millisecond
	t.Cleanup(func() { retryBaseWait = prev })
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &pgconn.PgError{Code: "23505"}, false},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true},
		{"eof", io.EOF, true},
		{"wrapped eof", errors.Join(errors.New("read"), io.ErrUnexpectedEOF), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestBackoff_DoublesWithinJitter(t *testing.T) {
	for n := range 3 {
		base := retryBaseWait << n
		for range 20 {
			d := backoff(n)
			assert.GreaterOrEqual(t, d, base*3/4)
			assert.LessOrEqual(t, d, base*5/4)
		}
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := retry(context.Background(), discardLogger(), "op", isTransient, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry(ctx, nil, "op", func(error) bool { return true }, func() error { return io.EOF })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresConfig_DSNEscapesCredentials(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "rep", Password: "p@ss/word", DBName: "reputation", SSLMode: "disable"}
	assert.Equal(t, "postgres://rep:p%40ss%2Fword@db:5432/reputation?sslmode=disable", cfg.DSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: 6380}.Addr())
}

func TestTraceQuery_LogsSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	SetSlowQueryLogging(time.Nanosecond, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "GetReview", "SELECT 1")
	time.Sleep(time.Millisecond)
	end(errors.New("timeout"))

	assert.Contains(t, buf.String(), `"msg":"slow query"`)
	assert.Contains(t, buf.String(), `"operation":"GetReview"`)
	assert.Contains(t, buf.String(), `"error":"timeout"`)
}

func TestTraceQuery_RecordsDuration(t *testing.T) {
	SetSlowQueryLogging(0, nil)

	_, end := TraceQuery(context.Background(), "ListRecoveryCases", "SELECT 1")
	end(nil)

	assert.GreaterOrEqual(t, promtest.CollectAndCount(queryDuration, "reputation_db_query_duration_seconds"), 1)
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "reputation")
	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	n := 0
	for d := range ch {
		assert.Contains(t, d.String(), "db_pool_")
		n++
	}
	assert.Equal(t, 8, n)
}
