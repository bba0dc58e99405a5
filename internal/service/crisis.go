package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/03aar/review-sub000/internal/authenticity"
	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/event"
	"github.com/03aar/review-sub000/internal/repository"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// CrisisService detects review-bombing per business and tracks its crisis
// lifecycle.
type CrisisService struct {
	reviews           repository.ReviewRepository
	states            repository.CrisisRepository
	cache             repository.CrisisCache
	producer          *event.Producer
	bombing           authenticity.BombingConfig
	negativeThreshold int
	parallelism       int
	logger            *slog.Logger
	now               func() time.Time
}

// NewCrisisService creates a new crisis service. cache may be nil.
func NewCrisisService(
	reviews repository.ReviewRepository,
	states repository.CrisisRepository,
	cache repository.CrisisCache,
	producer *event.Producer,
	bombing authenticity.BombingConfig,
	negativeThreshold int,
	parallelism int,
	logger *slog.Logger,
) *CrisisService {
	return &CrisisService{
		reviews:           reviews,
		states:            states,
		cache:             cache,
		producer:          producer,
		bombing:           bombing,
		negativeThreshold: negativeThreshold,
		parallelism:       max(1, parallelism),
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Current returns the last evaluated crisis state of a business, or nil if
// it has never been evaluated. The cache is consulted first; cache failures
// fall back to the database.
func (s *CrisisService) Current(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, businessID)
		if err != nil {
			s.logger.WarnContext(ctx, "crisis cache read failed, falling back to database",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		} else if cached != nil {
			return cached, nil
		}
	}

	state, err := s.stored(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.cacheState(ctx, state)
	}
	return state, nil
}

// Get returns the crisis state of a business. A business that has never been
// evaluated is reported as not in crisis.
func (s *CrisisService) Get(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	state, err := s.Current(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &domain.CrisisState{BusinessID: businessID}, nil
	}
	return state, nil
}

// Evaluate recomputes the bombing condition of a business as of now.
func (s *CrisisService) Evaluate(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	return s.evaluateAt(ctx, businessID, s.now())
}

func (s *CrisisService) evaluateAt(ctx context.Context, businessID string, at time.Time) (*domain.CrisisState, error) {
	windowStart, baselineStart := s.bombing.Ranges(at)
	// Timestamps are stored at microsecond precision; the bump keeps a review
	// stamped exactly at `at` inside the window.
	upper := at.Add(time.Microsecond)

	windowCount, err := s.reviews.CountNegative(ctx, businessID, s.negativeThreshold, windowStart, upper)
	if err != nil {
		return nil, fmt.Errorf("count negative reviews in window: %w", err)
	}
	baselineCount, err := s.reviews.CountNegative(ctx, businessID, s.negativeThreshold, baselineStart, windowStart)
	if err != nil {
		return nil, fmt.Errorf("count negative reviews in baseline: %w", err)
	}

	verdict := authenticity.EvaluateBombing(s.bombing, authenticity.Observation{
		WindowCount:   windowCount,
		BaselineCount: baselineCount,
	})

	prev, err := s.stored(ctx, businessID)
	if err != nil {
		return nil, err
	}
	next, change := authenticity.NextCrisisState(prev, businessID, verdict, at)

	if err := s.states.Save(ctx, &next); err != nil {
		return nil, fmt.Errorf("save crisis state: %w", err)
	}
	s.cacheState(ctx, &next)

	switch change {
	case authenticity.CrisisDetected:
		CrisisActive.Inc()
		CrisisChanges.WithLabelValues("detected").Inc()
		if err := s.producer.PublishCrisisDetected(ctx, &next); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish crisis.detected event",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.WarnContext(ctx, "review-bombing crisis detected",
			slog.String("business_id", businessID),
			slog.Int("negative_count_24h", verdict.NegativeCount24h),
			slog.Float64("baseline_daily_avg", verdict.BaselineDailyAvg),
		)
	case authenticity.CrisisCleared:
		CrisisActive.Dec()
		CrisisChanges.WithLabelValues("cleared").Inc()
		if err := s.producer.PublishCrisisCleared(ctx, &next); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish crisis.cleared event",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.InfoContext(ctx, "review-bombing crisis cleared",
			slog.String("business_id", businessID),
		)
	}

	return &next, nil
}

// Dismiss records a staff acknowledgement of an active crisis. The
// dismissal holds until the condition clears.
func (s *CrisisService) Dismiss(ctx context.Context, businessID, actor string) (*domain.CrisisState, error) {
	if actor == "" {
		return nil, apperrors.InvalidInput("actor is required")
	}

	prev, err := s.stored(ctx, businessID)
	if err != nil {
		return nil, err
	}
	alreadyDismissed := prev != nil && prev.Dismissed

	next, err := authenticity.Dismiss(prev, actor)
	if err != nil {
		return nil, err
	}
	if alreadyDismissed {
		return &next, nil
	}

	if err := s.states.Save(ctx, &next); err != nil {
		return nil, fmt.Errorf("save crisis state: %w", err)
	}
	s.cacheState(ctx, &next)
	CrisisChanges.WithLabelValues("dismissed").Inc()

	s.logger.InfoContext(ctx, "crisis dismissed",
		slog.String("business_id", businessID),
		slog.String("actor", actor),
	)
	return &next, nil
}

// ReevaluateActive re-runs detection for every business in an active crisis
// and every business with reviews in the detection window, so crises clear
// without waiting for the next review. Per-business failures are logged and
// skipped. It returns the number of businesses evaluated.
func (s *CrisisService) ReevaluateActive(ctx context.Context) (int, error) {
	at := s.now()

	active, err := s.states.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active crises: %w", err)
	}
	recent, err := s.reviews.ActiveBusinesses(ctx, at.Add(-s.bombing.Window))
	if err != nil {
		return 0, fmt.Errorf("list recently active businesses: %w", err)
	}

	seen := make(map[string]bool, len(active)+len(recent))
	businesses := make([]string, 0, len(active)+len(recent))
	for _, st := range active {
		if !seen[st.BusinessID] {
			seen[st.BusinessID] = true
			businesses = append(businesses, st.BusinessID)
		}
	}
	for _, id := range recent {
		if !seen[id] {
			seen[id] = true
			businesses = append(businesses, id)
		}
	}

	results := make([]bool, len(businesses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, businessID := range businesses {
		g.Go(func() error {
			state, err := s.evaluateAt(gctx, businessID, at)
			if err != nil {
				s.logger.ErrorContext(gctx, "crisis re-evaluation failed",
					slog.String("business_id", businessID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = state.Active
			return nil
		})
	}
	_ = g.Wait()

	activeCount := 0
	for _, a := range results {
		if a {
			activeCount++
		}
	}
	CrisisActive.Set(float64(activeCount))

	s.logger.InfoContext(ctx, "crisis re-evaluation complete",
		slog.Int("businesses", len(businesses)),
		slog.Int("active", activeCount),
	)
	return len(businesses), nil
}

// stored reads the persisted state, mapping an unknown business to nil.
func (s *CrisisService) stored(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	state, err := s.states.Get(ctx, businessID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get crisis state: %w", err)
	}
	return state, nil
}

func (s *CrisisService) cacheState(ctx context.Context, state *domain.CrisisState) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, state); err != nil {
		s.logger.WarnContext(ctx, "failed to cache crisis state",
			slog.String("business_id", state.BusinessID),
			slog.String("error", err.Error()),
		)
	}
}
