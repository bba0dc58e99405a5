package domain

import (
	"fmt"
	"time"
)

// PeriodLayout is the format of a goal period key (calendar month).
const PeriodLayout = "2006-01"

// GoalPeriod is a monthly review-volume goal. One live instance exists per
// business per period.
type GoalPeriod struct {
	BusinessID     string    `json:"business_id"`
	Period         string    `json:"period"`
	Target         int       `json:"target"`
	Current        int       `json:"current"`
	DaysElapsed    int       `json:"days_elapsed"`
	TotalDays      int       `json:"total_days"`
	ConversionRate float64   `json:"conversion_rate"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ParsePeriod parses a YYYY-MM period key into the first instant of that
// month in UTC.
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse(PeriodLayout, period)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q: expected YYYY-MM", period)
	}
	return t.UTC(), nil
}

// PeriodBounds returns [start, end) of the month named by period.
func PeriodBounds(period string) (time.Time, time.Time, error) {
	start, err := ParsePeriod(period)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, 0), nil
}

// PeriodOf returns the period key containing t.
func PeriodOf(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// CalendarProgress returns the days elapsed (counting the current day) and
// the total days of period as seen at now. Days elapsed is clamped to
// [0, totalDays].
func CalendarProgress(period string, now time.Time) (int, int, error) {
	start, end, err := PeriodBounds(period)
	if err != nil {
		return 0, 0, err
	}
	total := int(end.Sub(start).Hours() / 24)
	now = now.UTC()
	switch {
	case now.Before(start):
		return 0, total, nil
	case !now.Before(end):
		return total, total, nil
	default:
		return int(now.Sub(start).Hours()/24) + 1, total, nil
	}
}
