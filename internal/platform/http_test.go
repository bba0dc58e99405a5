package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/03aar/review-sub000/pkg/errors"
	"github.com/03aar/review-sub000/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Timeout:         2 * time.Second,
		MaxRetries:      0,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    time.Millisecond,
		MaxConnsPerHost: 4,
	})
}

func TestHTTPDrafter_Draft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/drafts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req DraftRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rev-1", req.ReviewID)
		assert.Equal(t, "mention the refund", req.Hint)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"We are sorry."}`))
	}))
	defer srv.Close()

	d := NewHTTPDrafter(testClient(), srv.URL+"/", testLogger())
	text, err := d.Draft(context.Background(), DraftRequest{ReviewID: "rev-1", Rating: 2, Hint: "mention the refund"})
	require.NoError(t, err)
	assert.Equal(t, "We are sorry.", text)
}

func TestHTTPDrafter_EmptyDraftIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"  "}`))
	}))
	defer srv.Close()

	_, err := NewHTTPDrafter(testClient(), srv.URL, testLogger()).Draft(context.Background(), DraftRequest{ReviewID: "rev-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty draft")
}

func TestHTTPPoster_StructuredConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"ALREADY_POSTED","message":"response exists"}}`))
	}))
	defer srv.Close()

	err := NewHTTPPoster(testClient(), srv.URL, testLogger()).Post(context.Background(), PostRequest{ReviewID: "rev-1", Platform: "yelp"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestHTTPPoster_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPPoster(testClient(), srv.URL, testLogger()).Post(context.Background(), PostRequest{ReviewID: "rev-1"}))
}

func TestCircuitOpenFallback_IsServiceUnavailable(t *testing.T) {
	resp, err := CircuitOpenFallback(context.Background(), httpclient.ErrCircuitOpen)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, apperrors.ErrServiceUnavail))
}
