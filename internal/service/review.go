package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/03aar/review-sub000/internal/authenticity"
	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/event"
	"github.com/03aar/review-sub000/internal/recovery"
	"github.com/03aar/review-sub000/internal/repository"
	"github.com/03aar/review-sub000/internal/scoring"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// ReviewService ingests reviews: it scores authenticity, appends to the
// review log, re-evaluates bombing and opens recovery cases.
type ReviewService struct {
	reviews  repository.ReviewRepository
	cases    repository.RecoveryCaseRepository
	crisis   *CrisisService
	producer *event.Producer
	auth     authenticity.Config
	policy   recovery.Policy
	scoring  scoring.Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(
	reviews repository.ReviewRepository,
	cases repository.RecoveryCaseRepository,
	crisis *CrisisService,
	producer *event.Producer,
	auth authenticity.Config,
	policy recovery.Policy,
	scoringCfg scoring.Config,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:  reviews,
		cases:    cases,
		crisis:   crisis,
		producer: producer,
		auth:     auth,
		policy:   policy,
		scoring:  scoringCfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IngestReviewInput holds the parameters for ingesting a review.
type IngestReviewInput struct {
	// ID is optional; upstream collectors may supply their own.
	ID         string
	BusinessID string
	Rating     int
	// Sentiment is derived from the rating when empty.
	Sentiment            string
	Text                 string
	Platform             string
	AuthorAccountAgeDays *int
	CategoryMatch        *bool
	PostedToPlatform     bool
	// CreatedAt defaults to the ingestion time.
	CreatedAt time.Time
}

// IngestResult is what ingestion produced.
type IngestResult struct {
	Review       *domain.Review          `json:"review"`
	Assessment   authenticity.Assessment `json:"assessment"`
	RecoveryCase *domain.RecoveryCase    `json:"recovery_case,omitempty"`
	Crisis       *domain.CrisisState     `json:"crisis,omitempty"`
}

// Ingest validates and appends a review, then runs the downstream checks.
func (s *ReviewService) Ingest(ctx context.Context, input *IngestReviewInput) (*IngestResult, error) {
	review, err := s.buildReview(input)
	if err != nil {
		return nil, err
	}
	now := s.now()

	// burst_member uses the crisis state as of arrival; earlier reviews are
	// never rescored.
	current, err := s.crisis.Current(ctx, review.BusinessID)
	if err != nil {
		s.logger.WarnContext(ctx, "crisis state unavailable, scoring without burst signal",
			slog.String("business_id", review.BusinessID),
			slog.String("error", err.Error()),
		)
		current = nil
	}

	assessment := authenticity.Assess(s.auth, authenticity.Signals{
		AccountAgeDays: review.AuthorAccountAgeDays,
		Text:           review.Text,
		CategoryMatch:  review.CategoryMatch,
		Negative:       review.IsNegative(s.policy.NegativeRatingThreshold),
		BurstActive:    current != nil && current.Active,
	})
	likelihood := assessment.Likelihood
	review.Flags = assessment.Flags
	review.AuthenticityLikelihood = &likelihood

	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			if cerr := s.openMissingCase(ctx, review.ID, now); cerr != nil {
				return nil, cerr
			}
		}
		return nil, fmt.Errorf("append review: %w", err)
	}
	ReviewsIngested.WithLabelValues(review.Platform, string(assessment.Priority)).Inc()

	result := &IngestResult{Review: review, Assessment: assessment}

	state, err := s.crisis.evaluateAt(ctx, review.BusinessID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "bombing evaluation failed",
			slog.String("business_id", review.BusinessID),
			slog.String("error", err.Error()),
		)
	} else {
		result.Crisis = state
	}

	caseID := ""
	if s.policy.ShouldOpen(review) {
		c := recovery.Open(review, now)
		if err := s.cases.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("open recovery case: %w", err)
		}
		result.RecoveryCase = c
		caseID = c.ID
	}

	if err := s.producer.PublishReviewReceived(ctx, review, assessment.RecommendReport, caseID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.received event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}
	s.publishRatingChanged(ctx, review.BusinessID, now)

	s.logger.InfoContext(ctx, "review ingested",
		slog.String("review_id", review.ID),
		slog.String("business_id", review.BusinessID),
		slog.Int("rating", review.Rating),
		slog.Int("likelihood", likelihood),
		slog.String("priority", string(assessment.Priority)),
		slog.String("recovery_case_id", caseID),
	)

	return result, nil
}

// IngestFromEvent ingests a review delivered over Kafka. A review that was
// already appended is acknowledged without reprocessing once its recovery
// case, if it needs one, exists.
func (s *ReviewService) IngestFromEvent(ctx context.Context, review *domain.Review) error {
	_, err := s.Ingest(ctx, &IngestReviewInput{
		ID:                   review.ID,
		BusinessID:           review.BusinessID,
		Rating:               review.Rating,
		Sentiment:            review.Sentiment,
		Text:                 review.Text,
		Platform:             review.Platform,
		AuthorAccountAgeDays: review.AuthorAccountAgeDays,
		CategoryMatch:        review.CategoryMatch,
		PostedToPlatform:     review.PostedToPlatform,
		CreatedAt:            review.CreatedAt,
	})
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		s.logger.InfoContext(ctx, "review already ingested, skipping",
			slog.String("review_id", review.ID),
		)
		return nil
	}
	return err
}

// openMissingCase opens the recovery case for a review that is already in the
// log but whose case insert failed on an earlier attempt. An existing case is
// left alone.
func (s *ReviewService) openMissingCase(ctx context.Context, reviewID string, now time.Time) error {
	stored, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("reload review %s: %w", reviewID, err)
	}
	if !s.policy.ShouldOpen(stored) {
		return nil
	}

	_, err = s.cases.GetByReviewID(ctx, reviewID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("look up recovery case: %w", err)
	}

	c := recovery.Open(stored, now)
	if err := s.cases.Create(ctx, c); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("open recovery case: %w", err)
	}
	s.logger.InfoContext(ctx, "opened missing recovery case",
		slog.String("review_id", reviewID),
		slog.String("recovery_case_id", c.ID),
	)
	return nil
}

// GetReview retrieves a review by its ID.
func (s *ReviewService) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	review, err := s.reviews.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

func (s *ReviewService) buildReview(input *IngestReviewInput) (*domain.Review, error) {
	if strings.TrimSpace(input.BusinessID) == "" {
		return nil, apperrors.InvalidInput("business_id is required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, apperrors.InvalidInput(fmt.Sprintf("rating must be between 1 and 5, got %d", input.Rating))
	}

	sentiment := input.Sentiment
	if sentiment == "" {
		sentiment = sentimentForRating(input.Rating)
	}
	if !domain.IsValidSentiment(sentiment) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid sentiment %q, must be one of: %s", sentiment, strings.Join(domain.ValidSentiments(), ", ")))
	}

	platform := input.Platform
	if platform == "" {
		platform = domain.PlatformOther
	}
	if !domain.IsValidPlatform(platform) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid platform %q, must be one of: %s", platform, strings.Join(domain.ValidPlatforms(), ", ")))
	}

	if input.AuthorAccountAgeDays != nil && *input.AuthorAccountAgeDays < 0 {
		return nil, apperrors.InvalidInput("author_account_age_days must not be negative")
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	return &domain.Review{
		ID:                   id,
		BusinessID:           input.BusinessID,
		Rating:               input.Rating,
		Sentiment:            sentiment,
		Text:                 input.Text,
		Platform:             platform,
		AuthorAccountAgeDays: input.AuthorAccountAgeDays,
		CategoryMatch:        input.CategoryMatch,
		PostedToPlatform:     input.PostedToPlatform,
		Flags:                []domain.Flag{},
		CreatedAt:            createdAt.UTC(),
	}, nil
}

func (s *ReviewService) publishRatingChanged(ctx context.Context, businessID string, now time.Time) {
	agg, err := s.reviews.Aggregate(ctx, businessID, now.Add(-s.scoring.RecentWindow))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to aggregate reviews for rating.changed",
			slog.String("business_id", businessID),
			slog.String("error", err.Error()),
		)
		return
	}
	snap := scoring.ComputeReputationScore(agg.AverageRating, agg.TotalReviews, agg.PositiveSentimentPct(), agg.RecentCount)
	if err := s.producer.PublishRatingChanged(ctx, businessID, snap, agg); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish rating.changed event",
			slog.String("business_id", businessID),
			slog.String("error", err.Error()),
		)
	}
}

func sentimentForRating(rating int) string {
	switch {
	case rating >= 4:
		return domain.SentimentPositive
	case rating == 3:
		return domain.SentimentNeutral
	default:
		return domain.SentimentNegative
	}
}
