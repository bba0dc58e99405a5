package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/03aar/review-sub000/pkg/errors"
	"github.com/03aar/review-sub000/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback replaces the breaker's raw ErrCircuitOpen with a
// structured 503 so callers can surface a retry hint.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("platform collaborator is temporarily unavailable, please retry later")
}

// HTTPDrafter calls a remote drafting service.
type HTTPDrafter struct {
	client  HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPDrafter creates a drafter that POSTs to baseURL/v1/drafts.
func NewHTTPDrafter(client HTTPDoer, baseURL string, logger *slog.Logger) *HTTPDrafter {
	return &HTTPDrafter{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Name returns the collaborator name.
func (d *HTTPDrafter) Name() string { return "response-drafter" }

// Draft requests response text for a review.
func (d *HTTPDrafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	type draftResponse struct {
		Text string `json:"text"`
	}

	resp, err := postJSON(ctx, d.client, d.baseURL+"/v1/drafts", req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", d.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", httpclient.ParseResponseError(resp, d.Name())
	}

	var out draftResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode draft response: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("%s returned an empty draft", d.Name())
	}

	d.logger.InfoContext(ctx, "response drafted",
		slog.String("review_id", req.ReviewID),
		slog.Int("length", len(out.Text)),
	)
	return out.Text, nil
}

// HTTPPoster calls a remote platform gateway.
type HTTPPoster struct {
	client  HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPPoster creates a poster that POSTs to baseURL/v1/responses.
func NewHTTPPoster(client HTTPDoer, baseURL string, logger *slog.Logger) *HTTPPoster {
	return &HTTPPoster{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Name returns the collaborator name.
func (p *HTTPPoster) Name() string { return "platform-poster" }

// Post publishes a response on the review's platform.
func (p *HTTPPoster) Post(ctx context.Context, req PostRequest) error {
	resp, err := postJSON(ctx, p.client, p.baseURL+"/v1/responses", req)
	if err != nil {
		return fmt.Errorf("call %s: %w", p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, p.Name())
	}

	p.logger.InfoContext(ctx, "response posted to platform",
		slog.String("review_id", req.ReviewID),
		slog.String("platform", req.Platform),
	)
	return nil
}

func postJSON(ctx context.Context, client HTTPDoer, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return client.Do(ctx, httpReq)
}
