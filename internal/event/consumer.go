package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/03aar/review-sub000/internal/domain"
	pkgkafka "github.com/03aar/review-sub000/pkg/kafka"
)

// Topics consumed from upstream collectors.
var (
	TopicReviewIngested = pkgkafka.Topic("review", "ingested")
	TopicRatingRevised  = pkgkafka.Topic("platform", "rating_revised")
)

// ConsumerGroupID is the consumer group of the reputation engine.
const ConsumerGroupID = "reputation-engine"

// ReviewIngester accepts reviews delivered over Kafka.
type ReviewIngester interface {
	IngestFromEvent(ctx context.Context, review *domain.Review) error
}

// RatingReviser applies a reviewer's rating revision to the recovery case
// opened for the review.
type RatingReviser interface {
	ApplyRatingRevision(ctx context.Context, reviewID string, newRating int, actor string) error
}

// reviewIngestedPayload is the data of a review.ingested event.
type reviewIngestedPayload struct {
	ID                   string    `json:"id"`
	BusinessID           string    `json:"business_id"`
	Rating               int       `json:"rating"`
	Sentiment            string    `json:"sentiment"`
	Text                 string    `json:"text"`
	Platform             string    `json:"platform"`
	AuthorAccountAgeDays *int      `json:"author_account_age_days"`
	CategoryMatch        *bool     `json:"category_match"`
	PostedToPlatform     bool      `json:"posted_to_platform"`
	CreatedAt            time.Time `json:"created_at"`
}

// ratingRevisedPayload is the data of a platform.rating_revised event.
type ratingRevisedPayload struct {
	ReviewID  string `json:"review_id"`
	OldRating int    `json:"old_rating"`
	NewRating int    `json:"new_rating"`
	Actor     string `json:"actor"`
}

// ConsumerHandler routes incoming Kafka events to the appropriate handler.
type ConsumerHandler struct {
	ingester ReviewIngester
	reviser  RatingReviser
	logger   *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(ingester ReviewIngester, reviser RatingReviser, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		ingester: ingester,
		reviser:  reviser,
		logger:   logger,
	}
}

// Handle processes an incoming Kafka event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicReviewIngested:
		return h.handleReviewIngested(ctx, event)
	case TopicRatingRevised:
		return h.handleRatingRevised(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (h *ConsumerHandler) handleReviewIngested(ctx context.Context, event *pkgkafka.Event) error {
	var p reviewIngestedPayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode review.ingested payload: %w", err)
	}
	if p.BusinessID == "" {
		return fmt.Errorf("review.ingested event %s has no business_id", event.EventID)
	}

	review := &domain.Review{
		ID:                   p.ID,
		BusinessID:           p.BusinessID,
		Rating:               p.Rating,
		Sentiment:            p.Sentiment,
		Text:                 p.Text,
		Platform:             p.Platform,
		AuthorAccountAgeDays: p.AuthorAccountAgeDays,
		CategoryMatch:        p.CategoryMatch,
		PostedToPlatform:     p.PostedToPlatform,
		CreatedAt:            p.CreatedAt,
	}

	h.logger.InfoContext(ctx, "received review.ingested event",
		slog.String("event_id", event.EventID),
		slog.String("business_id", p.BusinessID),
		slog.Int("rating", p.Rating),
	)

	if err := h.ingester.IngestFromEvent(ctx, review); err != nil {
		return fmt.Errorf("ingest review from event: %w", err)
	}
	return nil
}

func (h *ConsumerHandler) handleRatingRevised(ctx context.Context, event *pkgkafka.Event) error {
	var p ratingRevisedPayload
	if err := event.UnmarshalData(&p); err != nil {
		return fmt.Errorf("decode rating_revised payload: %w", err)
	}
	if p.ReviewID == "" {
		return fmt.Errorf("rating_revised event %s has no review_id", event.EventID)
	}

	if p.NewRating <= p.OldRating {
		h.logger.InfoContext(ctx, "ignoring rating revision that did not improve",
			slog.String("review_id", p.ReviewID),
			slog.Int("old_rating", p.OldRating),
			slog.Int("new_rating", p.NewRating),
		)
		return nil
	}

	actor := p.Actor
	if actor == "" {
		actor = event.Source
	}
	if err := h.reviser.ApplyRatingRevision(ctx, p.ReviewID, p.NewRating, actor); err != nil {
		return fmt.Errorf("apply rating revision: %w", err)
	}
	return nil
}

// ConsumersConfig configures the Kafka consumers of the reputation engine.
type ConsumersConfig struct {
	Brokers []string
	GroupID string
	// Store deduplicates redelivered events. Nil disables deduplication.
	Store pkgkafka.IdempotencyStore
	// DLQ receives events that exhaust their retries. Nil drops them.
	DLQ *pkgkafka.DLQProducer
}

// NewConsumers creates Kafka consumers for every topic the engine subscribes to.
func NewConsumers(cfg ConsumersConfig, handler *ConsumerHandler, logger *slog.Logger) []*pkgkafka.Consumer {
	topics := []string{
		TopicReviewIngested,
		TopicRatingRevised,
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = ConsumerGroupID
	}

	handle := pkgkafka.Handler(handler.Handle)
	if cfg.Store != nil {
		handle = pkgkafka.IdempotentHandler(cfg.Store, handle, logger)
	}

	consumers := make([]*pkgkafka.Consumer, 0, len(topics))
	for _, topic := range topics {
		consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.Brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, handle, logger)
		if cfg.DLQ != nil {
			consumer = consumer.WithDLQ(cfg.DLQ)
		}
		consumers = append(consumers, consumer)
	}

	return consumers
}
