// Package httpclient is the outbound HTTP stack for platform collaborators:
// pooled transport, bounded retries and a circuit breaker.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Config tunes the client.
type Config struct {
	Timeout         time.Duration // per attempt
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
}

// Client sends requests with retries on network errors and on 429, 502, 503
// and 504 responses.
type Client struct {
	http *http.Client
	cfg  Config
}

// New builds a Client with its own connection pool.
func New(cfg Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxConnsPerHost
	transport.MaxConnsPerHost = cfg.MaxConnsPerHost
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext

	return &Client{http: &http.Client{Transport: transport, Timeout: cfg.Timeout}, cfg: cfg}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryableErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// wait is the backoff before attempt n (1-based retry number): exponential
// from RetryWaitMin, capped at RetryWaitMax, with +/-25% jitter. A
// Retry-After header in seconds takes precedence when it is within the cap.
func (c *Client) wait(n int, resp *http.Response) time.Duration {
	if resp != nil {
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s >= 0 {
			if d := time.Duration(s) * time.Second; d <= c.cfg.RetryWaitMax {
				return d
			}
		}
	}
	d := min(c.cfg.RetryWaitMin<<(n-1), c.cfg.RetryWaitMax)
	if d <= 0 {
		return 0
	}
	return d*3/4 + rand.N(d/2+1) // #nosec G404 -- jitter only
}

// Do sends req, retrying per the client policy. Request bodies are rewound
// with GetBody between attempts; requests without GetBody are sent once.
// The W3C trace context of ctx is propagated in the request headers.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	maxRetries := c.cfg.MaxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxRetries = 0
	}

	var lastResp *http.Response
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.wait(attempt, lastResp)):
			}
		}

		try := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			try.Body = body
		}

		resp, err := c.http.Do(try)
		last := attempt >= maxRetries
		switch {
		case err != nil && (last || !retryableErr(err)):
			return nil, fmt.Errorf("%s %s after %d attempt(s): %w", req.Method, req.URL.Redacted(), attempt+1, err)
		case err != nil:
			lastResp = nil
			continue
		case retryableStatus(resp.StatusCode) && !last:
			drain(resp.Body)
			lastResp = resp
			continue
		}
		return resp, nil
	}
}
