// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/03aar/review-sub000/pkg/httputil"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// Status of the process or one dependency.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// CheckTimeout bounds every readiness probe.
const CheckTimeout = 3 * time.Second

// Response is the probe body.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type check struct {
	name     string
	fn       Checker
	critical bool
}

// Handler aggregates dependency checks. Critical failures make the process
// not ready; non-critical ones only degrade it.
type Handler struct {
	mu     sync.RWMutex
	checks []check
	now    func() time.Time
}

// NewHandler returns a Handler with no checks.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

// RegisterCritical adds a check that must pass for readiness.
func (h *Handler) RegisterCritical(name string, fn Checker) { h.add(name, fn, true) }

// RegisterNonCritical adds a check whose failure only degrades readiness.
func (h *Handler) RegisterNonCritical(name string, fn Checker) { h.add(name, fn, false) }

func (h *Handler) add(name string, fn Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check{name: name, fn: fn, critical: critical})
}

// LivenessHandler answers 200 while the process can serve HTTP.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: h.now().UTC()})
	}
}

// ReadinessHandler runs every check concurrently and answers 503 when a
// critical one fails.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// Check runs all registered checks and folds them into one status.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()

			start := h.now()
			err := c.fn(cctx)
			res := CheckResult{Status: StatusUp, Critical: c.critical, LatencyMS: h.now().Sub(start).Milliseconds()}
			if err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	resp := Response{Status: StatusUp, Timestamp: h.now().UTC(), Checks: make(map[string]CheckResult, len(checks))}
	for i, c := range checks {
		res := results[i]
		resp.Checks[c.name] = res
		if res.Status == StatusUp {
			continue
		}
		if c.critical {
			resp.Status = StatusDown
		} else if resp.Status == StatusUp {
			resp.Status = StatusDegraded
		}
	}
	return resp
}
