package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/03aar/review-sub000/internal/authenticity"
	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/repository"
	"github.com/03aar/review-sub000/internal/scoring"
)

// AnalyticsService computes the read models of a business on demand.
// Nothing it returns is stored.
type AnalyticsService struct {
	reviews repository.ReviewRepository
	cases   repository.RecoveryCaseRepository
	crisis  *CrisisService
	auth    authenticity.Config
	scoring scoring.Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(
	reviews repository.ReviewRepository,
	cases repository.RecoveryCaseRepository,
	crisis *CrisisService,
	auth authenticity.Config,
	scoringCfg scoring.Config,
	logger *slog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		reviews: reviews,
		cases:   cases,
		crisis:  crisis,
		auth:    auth,
		scoring: scoringCfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BusinessAnalytics is the combined analytics view of one business.
type BusinessAnalytics struct {
	BusinessID  string                      `json:"business_id"`
	Reputation  scoring.Snapshot            `json:"reputation"`
	Reviews     domain.ReviewAggregate      `json:"reviews"`
	Protection  scoring.ProtectionSnapshot  `json:"protection"`
	Crisis      *domain.CrisisState         `json:"crisis"`
	FlagBands   domain.LikelihoodBandCounts `json:"flag_bands"`
	Topics      scoring.TopicReport         `json:"topics"`
	Recovery    domain.RecoveryStats        `json:"recovery"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// ReputationScore is a committed reputation score.
type ReputationScore struct {
	BusinessID string       `json:"business_id"`
	Score      int          `json:"score"`
	Band       scoring.Band `json:"band"`
}

// Analytics gathers every input in parallel and derives the scores.
func (s *AnalyticsService) Analytics(ctx context.Context, businessID string) (*BusinessAnalytics, error) {
	now := s.now()

	var (
		agg    domain.ReviewAggregate
		bands  domain.LikelihoodBandCounts
		sample []domain.Review
		stats  domain.RecoveryStats
		crisis *domain.CrisisState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agg, err = s.reviews.Aggregate(gctx, businessID, now.Add(-s.scoring.RecentWindow))
		if err != nil {
			return fmt.Errorf("aggregate reviews: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		bands, err = s.reviews.LikelihoodBands(gctx, businessID, s.auth.HighBand, s.auth.MediumBand)
		if err != nil {
			return fmt.Errorf("count likelihood bands: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sample, err = s.reviews.ListRecent(gctx, businessID, s.scoring.TopicSampleSize)
		if err != nil {
			return fmt.Errorf("list recent reviews: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = s.cases.Stats(gctx, businessID, now.Add(-s.scoring.StaleCaseAfter))
		if err != nil {
			return fmt.Errorf("recovery case stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		crisis, err = s.crisis.Get(gctx, businessID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	checks := scoring.ComplianceChecks(s.scoring, scoring.ComplianceInput{
		TotalReviews: agg.TotalReviews,
		Recovery:     stats,
		Likelihoods:  bands,
		Crisis:       crisis,
	})

	result := &BusinessAnalytics{
		BusinessID:  businessID,
		Reputation:  scoring.ComputeReputationScore(agg.AverageRating, agg.TotalReviews, agg.PositiveSentimentPct(), agg.RecentCount),
		Reviews:     agg,
		Protection:  scoring.ComputeProtectionScore(checks),
		Crisis:      crisis,
		FlagBands:   bands,
		Topics:      scoring.TopicInsights(s.scoring, sample),
		Recovery:    stats,
		GeneratedAt: now,
	}

	s.logger.DebugContext(ctx, "analytics computed",
		slog.String("business_id", businessID),
		slog.Int("total_reviews", agg.TotalReviews),
		slog.Bool("insufficient_data", result.Reputation.InsufficientData),
	)
	return result, nil
}

// Reputation returns the committed reputation score, or an InsufficientData
// error when the business has no reviews.
func (s *AnalyticsService) Reputation(ctx context.Context, businessID string) (*ReputationScore, error) {
	agg, err := s.reviews.Aggregate(ctx, businessID, s.now().Add(-s.scoring.RecentWindow))
	if err != nil {
		return nil, fmt.Errorf("aggregate reviews: %w", err)
	}

	snap := scoring.ComputeReputationScore(agg.AverageRating, agg.TotalReviews, agg.PositiveSentimentPct(), agg.RecentCount)
	score, err := snap.Require()
	if err != nil {
		return nil, err
	}
	return &ReputationScore{BusinessID: businessID, Score: score, Band: snap.Band}, nil
}
