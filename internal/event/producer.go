package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/scoring"
	pkgkafka "github.com/03aar/review-sub000/pkg/kafka"
)

// Kafka topic constants for reputation domain events.
var (
	TopicReviewReceived       = pkgkafka.Topic("review", "received")
	TopicRatingChanged        = pkgkafka.Topic("rating", "changed")
	TopicCrisisDetected       = pkgkafka.Topic("crisis", "detected")
	TopicCrisisCleared        = pkgkafka.Topic("crisis", "cleared")
	TopicRecoveryStageChanged = pkgkafka.Topic("recovery", "stage_changed")
	TopicExperimentCompleted  = pkgkafka.Topic("experiment", "completed")
)

// Aggregate type constants.
const (
	AggregateTypeReview     = "review"
	AggregateTypeBusiness   = "business"
	AggregateTypeRecovery   = "recovery_case"
	AggregateTypeExperiment = "experiment"
)

// SourceReputationEngine identifies events originating from this service.
const SourceReputationEngine = "reputation-engine"

// Publisher is the part of *pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// ReviewReceivedData is the payload for a review.received event.
type ReviewReceivedData struct {
	ReviewID               string        `json:"review_id"`
	BusinessID             string        `json:"business_id"`
	Rating                 int           `json:"rating"`
	Sentiment              string        `json:"sentiment"`
	Platform               string        `json:"platform"`
	AuthenticityLikelihood *int          `json:"authenticity_likelihood"`
	Flags                  []domain.Flag `json:"flags"`
	RecommendReport        bool          `json:"recommend_report"`
	RecoveryCaseID         string        `json:"recovery_case_id,omitempty"`
}

// RatingChangedData is the payload for a rating.changed event.
type RatingChangedData struct {
	BusinessID    string       `json:"business_id"`
	Score         *int         `json:"score"`
	Band          scoring.Band `json:"band,omitempty"`
	TotalReviews  int          `json:"total_reviews"`
	AverageRating float64      `json:"average_rating"`
}

// CrisisData is the payload for crisis.detected and crisis.cleared events.
type CrisisData struct {
	BusinessID       string     `json:"business_id"`
	NegativeCount24h int        `json:"negative_count_24h"`
	BaselineDailyAvg float64    `json:"baseline_daily_avg"`
	Ratio            float64    `json:"ratio"`
	TriggeredAt      *time.Time `json:"triggered_at,omitempty"`
}

// RecoveryStageChangedData is the payload for a recovery.stage_changed event.
type RecoveryStageChangedData struct {
	CaseID     string        `json:"case_id"`
	ReviewID   string        `json:"review_id"`
	BusinessID string        `json:"business_id"`
	From       domain.Stage  `json:"from"`
	To         domain.Stage  `json:"to"`
	Action     domain.Action `json:"action"`
	Actor      string        `json:"actor"`
	Version    int           `json:"version"`
}

// ExperimentCompletedData is the payload for an experiment.completed event.
type ExperimentCompletedData struct {
	ExperimentID string             `json:"experiment_id"`
	BusinessID   string             `json:"business_id"`
	Winner       *domain.VariantKey `json:"winner"`
	Confidence   float64            `json:"confidence"`
	RateA        float64            `json:"rate_a"`
	RateB        float64            `json:"rate_b"`
	AutoPromoted bool               `json:"auto_promoted"`
}

// Producer publishes reputation domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the reputation engine.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(ctx, topic, aggregateID, aggregateType, SourceReputationEngine, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// PublishReviewReceived publishes a review.received event.
func (p *Producer) PublishReviewReceived(ctx context.Context, review *domain.Review, recommendReport bool, caseID string) error {
	data := ReviewReceivedData{
		ReviewID:               review.ID,
		BusinessID:             review.BusinessID,
		Rating:                 review.Rating,
		Sentiment:              review.Sentiment,
		Platform:               review.Platform,
		AuthenticityLikelihood: review.AuthenticityLikelihood,
		Flags:                  review.Flags,
		RecommendReport:        recommendReport,
		RecoveryCaseID:         caseID,
	}
	return p.publish(ctx, TopicReviewReceived, review.ID, AggregateTypeReview, data)
}

// PublishRatingChanged publishes a rating.changed event.
func (p *Producer) PublishRatingChanged(ctx context.Context, businessID string, snap scoring.Snapshot, agg domain.ReviewAggregate) error {
	data := RatingChangedData{
		BusinessID:    businessID,
		Score:         snap.Score,
		Band:          snap.Band,
		TotalReviews:  agg.TotalReviews,
		AverageRating: agg.AverageRating,
	}
	return p.publish(ctx, TopicRatingChanged, businessID, AggregateTypeBusiness, data)
}

// PublishCrisisDetected publishes a crisis.detected event.
func (p *Producer) PublishCrisisDetected(ctx context.Context, state *domain.CrisisState) error {
	return p.publish(ctx, TopicCrisisDetected, state.BusinessID, AggregateTypeBusiness, crisisData(state))
}

// PublishCrisisCleared publishes a crisis.cleared event.
func (p *Producer) PublishCrisisCleared(ctx context.Context, state *domain.CrisisState) error {
	return p.publish(ctx, TopicCrisisCleared, state.BusinessID, AggregateTypeBusiness, crisisData(state))
}

func crisisData(s *domain.CrisisState) CrisisData {
	return CrisisData{
		BusinessID:       s.BusinessID,
		NegativeCount24h: s.NegativeCount24h,
		BaselineDailyAvg: s.BaselineDailyAvg,
		Ratio:            s.Ratio,
		TriggeredAt:      s.TriggeredAt,
	}
}

// PublishRecoveryStageChanged publishes a recovery.stage_changed event.
func (p *Producer) PublishRecoveryStageChanged(ctx context.Context, c *domain.RecoveryCase, entry domain.HistoryEntry) error {
	data := RecoveryStageChangedData{
		CaseID:     c.ID,
		ReviewID:   c.ReviewID,
		BusinessID: c.BusinessID,
		From:       entry.From,
		To:         entry.To,
		Action:     entry.Action,
		Actor:      entry.Actor,
		Version:    c.Version,
	}
	return p.publish(ctx, TopicRecoveryStageChanged, c.ID, AggregateTypeRecovery, data)
}

// PublishExperimentCompleted publishes an experiment.completed event.
func (p *Producer) PublishExperimentCompleted(ctx context.Context, e *domain.Experiment, confidence float64, autoPromoted bool) error {
	data := ExperimentCompletedData{
		ExperimentID: e.ID,
		BusinessID:   e.BusinessID,
		Winner:       e.Winner,
		Confidence:   confidence,
		RateA:        rate(e.VariantA),
		RateB:        rate(e.VariantB),
		AutoPromoted: autoPromoted,
	}
	return p.publish(ctx, TopicExperimentCompleted, e.ID, AggregateTypeExperiment, data)
}

func rate(v domain.Variant) float64 {
	if v.Sent == 0 {
		return 0
	}
	return float64(v.Converted) / float64(v.Sent)
}
