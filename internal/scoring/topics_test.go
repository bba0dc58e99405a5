package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/03aar/review-sub000/internal/domain"
)

func review(rating int, sentiment, text string) domain.Review {
	return domain.Review{Rating: rating, Sentiment: sentiment, Text: text}
}

func TestTopicInsights_BelowMinimum(t *testing.T) {
	reviews := []domain.Review{
		review(5, domain.SentimentPositive, "Friendly staff"),
		review(1, domain.SentimentNegative, "Dirty tables"),
	}
	report := TopicInsights(testConfig(), reviews)
	assert.True(t, report.InsufficientData)
	assert.Equal(t, 2, report.SampleSize)
	assert.Empty(t, report.Topics)
}

func TestTopicInsights_Tally(t *testing.T) {
	reviews := []domain.Review{
		review(5, domain.SentimentPositive, "Friendly staff and spotless rooms."),
		review(4, domain.SentimentPositive, "Staff were polite, a bit expensive."),
		review(1, domain.SentimentNegative, "Rude manager. Waited an hour."),
		review(2, domain.SentimentNegative, "Slow service, overpriced."),
		review(3, domain.SentimentNeutral, "It was fine."),
	}

	report := TopicInsights(testConfig(), reviews)
	require.False(t, report.InsufficientData)
	assert.Equal(t, 5, report.SampleSize)

	byTopic := map[string]TopicStat{}
	for _, ts := range report.Topics {
		byTopic[ts.Topic] = ts
	}

	staff := byTopic["staff"]
	assert.Equal(t, 3, staff.Mentions)
	assert.Equal(t, 2, staff.Positive)
	assert.Equal(t, 1, staff.Negative)
	assert.InDelta(t, 10.0/3.0, staff.AverageRating, 1e-9)

	assert.Equal(t, 2, byTopic["price"].Mentions)
	assert.Equal(t, 2, byTopic["wait_time"].Mentions)
	assert.Equal(t, 1, byTopic["cleanliness"].Mentions)
	assert.NotContains(t, byTopic, "location")

	assert.Equal(t, "staff", report.Topics[0].Topic, "most mentioned topic first")
}
