package authenticity

import (
	"fmt"
	"time"

	"github.com/03aar/review-sub000/internal/domain"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// BombingConfig holds the review-bombing detection parameters.
type BombingConfig struct {
	// Multiplier is how far the short-window count must exceed the baseline
	// daily average.
	Multiplier float64
	// MinBurstCount is the trigger floor used when the baseline is zero. At 1
	// the zero-baseline case is the same strict comparison as any other;
	// raising it keeps a quiet business from paging on a single bad review.
	MinBurstCount int
	Window        time.Duration
	BaselineDays  int
}

// Validate rejects non-positive parameters.
func (c BombingConfig) Validate() error {
	if c.Multiplier <= 0 {
		return apperrors.ConfigurationError(fmt.Sprintf("bombing multiplier must be positive, got %v", c.Multiplier))
	}
	if c.MinBurstCount < 1 {
		return apperrors.ConfigurationError("bombing minimum burst count must be at least 1")
	}
	if c.Window <= 0 {
		return apperrors.ConfigurationError("bombing window must be positive")
	}
	if c.BaselineDays < 1 {
		return apperrors.ConfigurationError("bombing baseline must span at least 1 day")
	}
	return nil
}

// Ranges returns the start of the short window and the start of the baseline
// window as seen at now. The baseline ends where the short window begins.
func (c BombingConfig) Ranges(now time.Time) (windowStart, baselineStart time.Time) {
	windowStart = now.Add(-c.Window)
	baselineStart = windowStart.AddDate(0, 0, -c.BaselineDays)
	return windowStart, baselineStart
}

// Observation is a pair of negative-review counts read from the review log.
type Observation struct {
	WindowCount   int
	BaselineCount int
}

// Verdict is the outcome of one bombing evaluation.
type Verdict struct {
	Triggered        bool    `json:"triggered"`
	NegativeCount24h int     `json:"negative_count_24h"`
	BaselineDailyAvg float64 `json:"baseline_daily_avg"`
	// Ratio is the window count over the baseline average; 0 when the
	// baseline is zero.
	Ratio float64 `json:"ratio"`
}

// EvaluateBombing decides whether obs represents review-bombing. With a
// non-zero baseline it triggers iff the window count is strictly greater than
// Multiplier times the baseline daily average. With a zero baseline it
// triggers iff the window count reaches MinBurstCount, which at 1 is the same
// count > 0 rule.
func EvaluateBombing(cfg BombingConfig, obs Observation) Verdict {
	baseline := float64(obs.BaselineCount) / float64(cfg.BaselineDays)
	v := Verdict{
		NegativeCount24h: obs.WindowCount,
		BaselineDailyAvg: baseline,
	}
	if baseline == 0 {
		v.Triggered = obs.WindowCount >= cfg.MinBurstCount
		return v
	}
	v.Ratio = float64(obs.WindowCount) / baseline
	v.Triggered = float64(obs.WindowCount) > cfg.Multiplier*baseline
	return v
}

// CrisisChange describes how a crisis state moved during an evaluation.
type CrisisChange int

// Crisis changes.
const (
	CrisisUnchanged CrisisChange = iota
	CrisisDetected
	CrisisCleared
)

// NextCrisisState applies v to prev. A crisis starts when the condition
// first triggers and clears automatically once it no longer holds. A
// dismissal survives while the condition keeps holding, and is forgotten
// when it clears so the next trigger alerts again.
func NextCrisisState(prev *domain.CrisisState, businessID string, v Verdict, now time.Time) (domain.CrisisState, CrisisChange) {
	next := domain.CrisisState{BusinessID: businessID}
	if prev != nil {
		next = *prev
	}
	next.NegativeCount24h = v.NegativeCount24h
	next.BaselineDailyAvg = v.BaselineDailyAvg
	next.Ratio = v.Ratio
	next.EvaluatedAt = now

	switch {
	case v.Triggered && !next.Active:
		next.Active = true
		next.Dismissed = false
		next.DismissedBy = ""
		triggered := now
		next.TriggeredAt = &triggered
		return next, CrisisDetected
	case !v.Triggered && next.Active:
		next.Active = false
		next.Dismissed = false
		next.DismissedBy = ""
		next.TriggeredAt = nil
		return next, CrisisCleared
	default:
		return next, CrisisUnchanged
	}
}

// Dismiss marks an active crisis as acknowledged by actor.
func Dismiss(state *domain.CrisisState, actor string) (domain.CrisisState, error) {
	if state == nil || !state.Active {
		return domain.CrisisState{}, apperrors.Conflict("no active crisis to dismiss")
	}
	if state.Dismissed {
		return *state, nil
	}
	next := *state
	next.Dismissed = true
	next.DismissedBy = actor
	return next, nil
}
