// Package pacing forecasts progress toward a periodic review-volume goal.
package pacing

import (
	"fmt"
	"math"

	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// Input is a goal period snapshot. ConversionRate is a percentage of review
// requests that turn into reviews.
type Input struct {
	Target         int
	Current        int
	DaysElapsed    int
	TotalDays      int
	ConversionRate float64
}

// Forecast is recomputed from the latest snapshot on every read.
type Forecast struct {
	ExpectedByNow  int  `json:"expected_by_now"`
	OnTrack        bool `json:"on_track"`
	Remaining      int  `json:"remaining"`
	RequestsNeeded int  `json:"requests_needed"`
	// DailyRequestsNeeded is nil once no days remain in the period.
	DailyRequestsNeeded *int `json:"daily_requests_needed"`
	// ProjectedTotal is nil before the first day has elapsed.
	ProjectedTotal *int `json:"projected_total"`
}

// Validate rejects targets, period lengths and conversion rates that would
// make the forecast meaningless.
func (in Input) Validate() error {
	if in.Target <= 0 {
		return apperrors.ConfigurationError(fmt.Sprintf("goal target must be positive, got %d", in.Target))
	}
	if in.TotalDays <= 0 {
		return apperrors.ConfigurationError(fmt.Sprintf("goal period must have at least one day, got %d", in.TotalDays))
	}
	if in.ConversionRate <= 0 || in.ConversionRate > 100 {
		return apperrors.ConfigurationError(fmt.Sprintf("conversion rate must be in (0, 100], got %v", in.ConversionRate))
	}
	if in.Current < 0 || in.DaysElapsed < 0 || in.DaysElapsed > in.TotalDays {
		return apperrors.ConfigurationError("goal progress is out of range")
	}
	return nil
}

// Compute returns the pace forecast for in.
func Compute(in Input) (Forecast, error) {
	if err := in.Validate(); err != nil {
		return Forecast{}, err
	}

	expected := int(math.Round(float64(in.DaysElapsed) / float64(in.TotalDays) * float64(in.Target)))
	remaining := max(0, in.Target-in.Current)

	requests := 0
	if remaining > 0 {
		requests = int(math.Ceil(float64(remaining) / (in.ConversionRate / 100)))
	}

	f := Forecast{
		ExpectedByNow:  expected,
		OnTrack:        in.Current >= expected,
		Remaining:      remaining,
		RequestsNeeded: requests,
	}

	if daysLeft := in.TotalDays - in.DaysElapsed; daysLeft > 0 {
		daily := int(math.Ceil(float64(requests) / float64(daysLeft)))
		f.DailyRequestsNeeded = &daily
	}
	if in.DaysElapsed > 0 {
		projected := int(math.Round(float64(in.Current) / float64(in.DaysElapsed) * float64(in.TotalDays)))
		f.ProjectedTotal = &projected
	}
	return f, nil
}
