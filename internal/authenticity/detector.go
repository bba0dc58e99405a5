// Package authenticity scores individual reviews for signs of inauthenticity
// and detects review-bombing at business granularity. Everything here is a
// pure function of its inputs and safe to call concurrently.
package authenticity

import (
	"fmt"
	"strings"

	"github.com/03aar/review-sub000/internal/domain"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// Priority is the action band a likelihood falls into.
type Priority string

// Priority bands.
const (
	PriorityHigh          Priority = "high"
	PriorityMedium        Priority = "medium"
	PriorityInformational Priority = "informational"
)

// Weights is the likelihood contribution of each heuristic.
type Weights struct {
	NewAccount       int
	GenericText      int
	BurstMember      int
	CategoryMismatch int
}

// Config holds the per-review heuristic parameters.
type Config struct {
	Weights              Weights
	HighBand             int
	MediumBand           int
	NewAccountMaxAgeDays int
	GenericTextMinWords  int
	GenericPhrases       []string
}

// Validate rejects negative weights and inconsistent bands.
func (c Config) Validate() error {
	for reason, w := range c.weightsByReason() {
		if w < 0 {
			return apperrors.ConfigurationError(fmt.Sprintf("weight for %s must not be negative, got %d", reason, w))
		}
	}
	if c.MediumBand <= 0 || c.HighBand <= c.MediumBand || c.HighBand > 100 {
		return apperrors.ConfigurationError(fmt.Sprintf(
			"likelihood bands must satisfy 0 < medium < high <= 100, got medium=%d high=%d", c.MediumBand, c.HighBand))
	}
	if c.NewAccountMaxAgeDays < 1 {
		return apperrors.ConfigurationError("new account age threshold must be at least 1 day")
	}
	if c.GenericTextMinWords < 0 {
		return apperrors.ConfigurationError("generic text minimum word count must not be negative")
	}
	return nil
}

func (c Config) weightsByReason() map[string]int {
	return map[string]int{
		domain.FlagNewAccount:       c.Weights.NewAccount,
		domain.FlagGenericText:      c.Weights.GenericText,
		domain.FlagBurstMember:      c.Weights.BurstMember,
		domain.FlagCategoryMismatch: c.Weights.CategoryMismatch,
	}
}

// WeightFor returns the configured weight of a flag reason, or 0 for an
// unknown reason.
func (c Config) WeightFor(reason string) int {
	return c.weightsByReason()[reason]
}

// Band maps a likelihood onto its priority band.
func (c Config) Band(likelihood int) Priority {
	switch {
	case likelihood >= c.HighBand:
		return PriorityHigh
	case likelihood >= c.MediumBand:
		return PriorityMedium
	default:
		return PriorityInformational
	}
}

// Signals are the observable facts about a review at ingestion time.
type Signals struct {
	AccountAgeDays *int
	Text           string
	CategoryMatch  *bool
	Negative       bool
	// BurstActive is the business's crisis state when the review arrived.
	BurstActive bool
}

// Assessment is the result of scoring one review.
type Assessment struct {
	Flags           []domain.Flag `json:"flags"`
	Likelihood      int           `json:"likelihood"`
	Priority        Priority      `json:"priority"`
	RecommendReport bool          `json:"recommend_report"`
}

// Assess evaluates every heuristic against s and scores the resulting flags.
// Flags are always emitted in a fixed order.
func Assess(cfg Config, s Signals) Assessment {
	var reasons []string
	if s.AccountAgeDays != nil && *s.AccountAgeDays < cfg.NewAccountMaxAgeDays {
		reasons = append(reasons, domain.FlagNewAccount)
	}
	if isGenericText(s.Text, cfg.GenericPhrases, cfg.GenericTextMinWords) {
		reasons = append(reasons, domain.FlagGenericText)
	}
	if s.Negative && s.BurstActive {
		reasons = append(reasons, domain.FlagBurstMember)
	}
	if s.CategoryMatch != nil && !*s.CategoryMatch {
		reasons = append(reasons, domain.FlagCategoryMismatch)
	}
	return Score(cfg, reasons)
}

// Score builds the weighted flag set for reasons and derives the likelihood.
// Duplicate reasons count once.
func Score(cfg Config, reasons []string) Assessment {
	flags := make([]domain.Flag, 0, len(reasons))
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		if seen[r] {
			continue
		}
		seen[r] = true
		flags = append(flags, domain.Flag{Reason: r, Weight: cfg.WeightFor(r)})
	}

	likelihood := Likelihood(flags)
	priority := cfg.Band(likelihood)
	return Assessment{
		Flags:           flags,
		Likelihood:      likelihood,
		Priority:        priority,
		RecommendReport: priority == PriorityHigh,
	}
}

// Likelihood is the sum of flag weights clamped to [0, 100].
func Likelihood(flags []domain.Flag) int {
	sum := 0
	for _, f := range flags {
		sum += f.Weight
	}
	return clamp(sum, 0, 100)
}

// isGenericText reports whether text is too short to carry information, or
// is mostly template phrases. Empty text is a rating-only review and is not
// treated as a signal.
func isGenericText(text string, phrases []string, minWords int) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	if len(strings.Fields(normalized)) < minWords {
		return true
	}

	matched := false
	remainder := normalized
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || !strings.Contains(remainder, p) {
			continue
		}
		matched = true
		remainder = strings.ReplaceAll(remainder, p, " ")
	}
	if !matched {
		return false
	}

	remaining := 0
	for _, w := range strings.Fields(remainder) {
		if strings.Trim(w, ".,!?;:'\"-") != "" {
			remaining++
		}
	}
	return remaining < minWords
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
