// Package experiment evaluates two-variant review-request message tests with
// a pooled two-proportion z-test and manages their lifecycle.
package experiment

import (
	"fmt"
	"math"

	"github.com/03aar/review-sub000/internal/domain"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// Policy holds the significance threshold (percent) and the default
// auto-promotion setting for new experiments.
type Policy struct {
	SignificanceThreshold float64
	AutoPromote           bool
}

// Validate rejects thresholds outside (0, 100).
func (p Policy) Validate() error {
	if p.SignificanceThreshold <= 0 || p.SignificanceThreshold >= 100 {
		return apperrors.ConfigurationError(fmt.Sprintf("significance threshold must be between 0 and 100 exclusive, got %v", p.SignificanceThreshold))
	}
	return nil
}

// Evaluation is the statistical read of an experiment. Leader is the variant
// with the higher observed rate; Winner is set only once the difference is
// significant at the policy threshold.
type Evaluation struct {
	RateA              float64            `json:"rate_a"`
	RateB              float64            `json:"rate_b"`
	Z                  float64            `json:"z"`
	Confidence         float64            `json:"confidence"`
	Leader             *domain.VariantKey `json:"leader"`
	Winner             *domain.VariantKey `json:"winner"`
	Significant        bool               `json:"significant"`
	InsufficientSample bool               `json:"insufficient_sample"`
}

// Evaluate runs the pooled two-proportion z-test on a and b. A variant with
// no sends yields an InsufficientSample evaluation with no rates. A zero
// standard error (both rates 0% or both 100%) has confidence 0.
func Evaluate(a, b domain.Variant, p Policy) Evaluation {
	if a.Sent <= 0 || b.Sent <= 0 {
		return Evaluation{InsufficientSample: true}
	}

	rateA := float64(a.Converted) / float64(a.Sent)
	rateB := float64(b.Converted) / float64(b.Sent)
	ev := Evaluation{RateA: rateA, RateB: rateB}

	switch {
	case rateA > rateB:
		ev.Leader = variantPtr(domain.VariantA)
	case rateB > rateA:
		ev.Leader = variantPtr(domain.VariantB)
	}

	pooled := float64(a.Converted+b.Converted) / float64(a.Sent+b.Sent)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.Sent) + 1/float64(b.Sent)))
	if se == 0 {
		return ev
	}

	ev.Z = (rateB - rateA) / se
	ev.Confidence = TwoSidedConfidence(ev.Z)
	if ev.Leader != nil && ev.Confidence >= p.SignificanceThreshold {
		ev.Significant = true
		ev.Winner = variantPtr(*ev.Leader)
	}
	return ev
}

// TwoSidedConfidence maps a z statistic to (1 - two-sided p-value) * 100.
func TwoSidedConfidence(z float64) float64 {
	return (1 - 2*(1-NormalCDF(math.Abs(z)))) * 100
}

// NormalCDF is the standard normal cumulative distribution function.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func variantPtr(k domain.VariantKey) *domain.VariantKey {
	return &k
}
