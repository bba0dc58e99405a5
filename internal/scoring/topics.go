package scoring

import (
	"sort"
	"strings"
	"unicode"

	"github.com/03aar/review-sub000/internal/domain"
)

// topicKeywords maps each tracked topic to the stems that indicate it.
var topicKeywords = map[string][]string{
	"service":     {"service", "served", "server", "waiter", "waitress", "help"},
	"staff":       {"staff", "employee", "manager", "rude", "friendly", "polite"},
	"price":       {"price", "expensive", "cheap", "overpriced", "value", "cost"},
	"quality":     {"quality", "fresh", "broken", "stale", "excellent", "defect"},
	"wait_time":   {"wait", "waited", "slow", "quick", "fast", "delay", "late"},
	"cleanliness": {"clean", "dirty", "filthy", "smell", "spotless", "hygiene"},
	"location":    {"location", "parking", "neighborhood", "directions", "access"},
}

// TopicStat tallies the reviews that mention one topic.
type TopicStat struct {
	Topic         string  `json:"topic"`
	Mentions      int     `json:"mentions"`
	Positive      int     `json:"positive"`
	Negative      int     `json:"negative"`
	AverageRating float64 `json:"average_rating"`
}

// TopicReport is the topic breakdown of a review sample.
type TopicReport struct {
	SampleSize       int         `json:"sample_size"`
	Topics           []TopicStat `json:"topics"`
	InsufficientData bool        `json:"insufficient_data"`
}

// TopicInsights tallies topic mentions across reviews. Fewer than
// cfg.TopicMinReviews reviews yields an InsufficientData report.
func TopicInsights(cfg Config, reviews []domain.Review) TopicReport {
	if len(reviews) < cfg.TopicMinReviews {
		return TopicReport{SampleSize: len(reviews), Topics: []TopicStat{}, InsufficientData: true}
	}

	stats := make(map[string]*TopicStat)
	ratingSum := make(map[string]int)
	for i := range reviews {
		r := &reviews[i]
		for topic := range mentionedTopics(r.Text) {
			st, ok := stats[topic]
			if !ok {
				st = &TopicStat{Topic: topic}
				stats[topic] = st
			}
			st.Mentions++
			ratingSum[topic] += r.Rating
			switch r.Sentiment {
			case domain.SentimentPositive:
				st.Positive++
			case domain.SentimentNegative:
				st.Negative++
			}
		}
	}

	topics := make([]TopicStat, 0, len(stats))
	for topic, st := range stats {
		st.AverageRating = float64(ratingSum[topic]) / float64(st.Mentions)
		topics = append(topics, *st)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Mentions != topics[j].Mentions {
			return topics[i].Mentions > topics[j].Mentions
		}
		return topics[i].Topic < topics[j].Topic
	})

	return TopicReport{SampleSize: len(reviews), Topics: topics}
}

func mentionedTopics(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[w] = struct{}{}
	}

	found := make(map[string]struct{})
	for topic, keywords := range topicKeywords {
		for _, k := range keywords {
			if _, ok := present[k]; ok {
				found[topic] = struct{}{}
				break
			}
		}
	}
	return found
}
