package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Enum Validation Tests
// ============================================================================

func TestIsValidSentiment(t *testing.T) {
	for _, s := range ValidSentiments() {
		assert.True(t, IsValidSentiment(s), "expected %q to be valid", s)
	}
	assert.False(t, IsValidSentiment("mixed"))
	assert.False(t, IsValidSentiment("POSITIVE"))
}

func TestIsValidPlatform(t *testing.T) {
	assert.ElementsMatch(t, []string{"google", "yelp", "facebook", "other"}, ValidPlatforms())
	assert.False(t, IsValidPlatform("tripadvisor"))
}

func TestIsValidStageAndAction(t *testing.T) {
	for _, s := range ValidStages() {
		assert.True(t, IsValidStage(string(s)))
	}
	for _, a := range ValidActions() {
		assert.True(t, IsValidAction(string(a)))
	}
	assert.False(t, IsValidStage("archived"))
	assert.False(t, IsValidAction("approve"))
}

func TestIsValidVariant(t *testing.T) {
	assert.True(t, IsValidVariant("A"))
	assert.True(t, IsValidVariant("B"))
	assert.False(t, IsValidVariant("C"))
	assert.False(t, IsValidVariant("a"))
}

// ============================================================================
// Aggregate Tests
// ============================================================================

func TestReview_IsNegative(t *testing.T) {
	r := &Review{Rating: 2}
	assert.True(t, r.IsNegative(2))
	assert.False(t, r.IsNegative(1))
}

func TestReviewAggregate_PositiveSentimentPct(t *testing.T) {
	assert.Equal(t, 0.0, ReviewAggregate{}.PositiveSentimentPct())
	assert.InDelta(t, 75.0, ReviewAggregate{TotalReviews: 8, PositiveCount: 6}.PositiveSentimentPct(), 1e-9)
}

func TestRecoveryStats_Actioned(t *testing.T) {
	stats := RecoveryStats{
		Total:   10,
		ByStage: map[Stage]int{StageReceived: 3, StageResponded: 5, StageDismissed: 2},
	}
	assert.Equal(t, 7, stats.Actioned())
}

func TestCrisisState_InCrisis(t *testing.T) {
	var nilState *CrisisState
	assert.False(t, nilState.InCrisis())
	assert.True(t, (&CrisisState{Active: true}).InCrisis())
	assert.False(t, (&CrisisState{Active: true, Dismissed: true}).InCrisis())
}

// ============================================================================
// Goal Period Tests
// ============================================================================

func TestPeriodBounds(t *testing.T) {
	start, end, err := PeriodBounds("2024-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = PeriodBounds("2024-13")
	assert.Error(t, err)
	_, _, err = PeriodBounds("Feb 2024")
	assert.Error(t, err)
}

func TestCalendarProgress(t *testing.T) {
	tests := []struct {
		name          string
		now           time.Time
		wantElapsed   int
		wantTotalDays int
	}{
		{"before period", time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC), 0, 29},
		{"first day", time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), 1, 29},
		{"mid period", time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC), 15, 29},
		{"after period", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 29, 29},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elapsed, total, err := CalendarProgress("2024-02", tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantElapsed, elapsed)
			assert.Equal(t, tt.wantTotalDays, total)
		})
	}
}

func TestPeriodOf(t *testing.T) {
	assert.Equal(t, "2024-07", PeriodOf(time.Date(2024, 7, 31, 23, 59, 0, 0, time.UTC)))
}
