package scoring

import (
	"fmt"
	"math"

	"github.com/03aar/review-sub000/internal/domain"
)

// Check is a single pass/fail compliance check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ProtectionSnapshot is the compliance score and the checks behind it.
type ProtectionSnapshot struct {
	Score            *int    `json:"score"`
	Checks           []Check `json:"checks"`
	InsufficientData bool    `json:"insufficient_data"`
}

// ComputeProtectionScore gives each passed check 100/N points with no partial
// credit. With no applicable checks there is no score.
func ComputeProtectionScore(checks []Check) ProtectionSnapshot {
	if len(checks) == 0 {
		return ProtectionSnapshot{Checks: []Check{}, InsufficientData: true}
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	score := int(math.Round(float64(passed) * 100 / float64(len(checks))))
	return ProtectionSnapshot{Score: &score, Checks: checks}
}

// Compliance check names.
const (
	CheckResponseRate    = "response_rate"
	CheckNoStaleCases    = "no_stale_cases"
	CheckSuspiciousShare = "suspicious_share"
	CheckCrisisHandled   = "crisis_handled"
)

// ComplianceInput is what the compliance checks look at.
type ComplianceInput struct {
	TotalReviews int
	Recovery     domain.RecoveryStats
	Likelihoods  domain.LikelihoodBandCounts
	Crisis       *domain.CrisisState
}

// ComplianceChecks builds the checks that apply to in. A check with nothing
// to measure is omitted rather than passed.
func ComplianceChecks(cfg Config, in ComplianceInput) []Check {
	checks := []Check{}

	if in.Recovery.Total > 0 {
		rate := float64(in.Recovery.Actioned()) / float64(in.Recovery.Total) * 100
		checks = append(checks, Check{
			Name:   CheckResponseRate,
			Passed: rate >= float64(cfg.ResponseRateTarget),
			Detail: fmt.Sprintf("%.0f%% of negative reviews actioned, target %d%%", rate, cfg.ResponseRateTarget),
		})
		checks = append(checks, Check{
			Name:   CheckNoStaleCases,
			Passed: in.Recovery.StaleReceived == 0,
			Detail: fmt.Sprintf("%d cases untouched for more than %s", in.Recovery.StaleReceived, cfg.StaleCaseAfter),
		})
	}

	if scored := in.Likelihoods.Total(); scored > 0 {
		share := float64(in.Likelihoods.High) / float64(scored) * 100
		checks = append(checks, Check{
			Name:   CheckSuspiciousShare,
			Passed: share <= float64(cfg.SuspiciousShareLimit),
			Detail: fmt.Sprintf("%.1f%% of reviews in the high likelihood band, limit %d%%", share, cfg.SuspiciousShareLimit),
		})
	}

	if in.TotalReviews > 0 {
		checks = append(checks, Check{
			Name:   CheckCrisisHandled,
			Passed: !in.Crisis.InCrisis(),
		})
	}

	return checks
}
