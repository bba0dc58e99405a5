package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/pacing"
	"github.com/03aar/review-sub000/internal/repository"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// GoalService manages monthly review-volume goals and their forecasts.
type GoalService struct {
	goals   repository.GoalRepository
	reviews repository.ReviewRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewGoalService creates a new goal service.
func NewGoalService(goals repository.GoalRepository, reviews repository.ReviewRepository, logger *slog.Logger) *GoalService {
	return &GoalService{
		goals:   goals,
		reviews: reviews,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetGoalInput holds the parameters for setting a goal.
type SetGoalInput struct {
	BusinessID     string
	Period         string
	Target         int
	ConversionRate float64
}

// GoalForecast is a goal period with its live progress and pace.
type GoalForecast struct {
	Goal     *domain.GoalPeriod `json:"goal"`
	Forecast pacing.Forecast    `json:"forecast"`
}

// SetGoal creates or replaces the goal for a business and period.
func (s *GoalService) SetGoal(ctx context.Context, input *SetGoalInput) (*domain.GoalPeriod, error) {
	if strings.TrimSpace(input.BusinessID) == "" {
		return nil, apperrors.InvalidInput("business_id is required")
	}
	if _, err := domain.ParsePeriod(input.Period); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if input.Target <= 0 {
		return nil, apperrors.ConfigurationError(fmt.Sprintf("goal target must be positive, got %d", input.Target))
	}
	if input.ConversionRate <= 0 || input.ConversionRate > 100 {
		return nil, apperrors.ConfigurationError(fmt.Sprintf("conversion rate must be in (0, 100], got %v", input.ConversionRate))
	}

	now := s.now()
	g := &domain.GoalPeriod{
		BusinessID:     input.BusinessID,
		Period:         input.Period,
		Target:         input.Target,
		ConversionRate: input.ConversionRate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.goals.Upsert(ctx, g); err != nil {
		return nil, fmt.Errorf("set goal: %w", err)
	}

	s.logger.InfoContext(ctx, "goal set",
		slog.String("business_id", g.BusinessID),
		slog.String("period", g.Period),
		slog.Int("target", g.Target),
	)
	return s.withProgress(ctx, g, now)
}

// Forecast returns the goal with its progress counted from the review log
// and its pace computed from the calendar.
func (s *GoalService) Forecast(ctx context.Context, businessID, period string) (*GoalForecast, error) {
	if _, err := domain.ParsePeriod(period); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	g, err := s.goals.Get(ctx, businessID, period)
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	if g, err = s.withProgress(ctx, g, s.now()); err != nil {
		return nil, err
	}

	f, err := pacing.Compute(pacing.Input{
		Target:         g.Target,
		Current:        g.Current,
		DaysElapsed:    g.DaysElapsed,
		TotalDays:      g.TotalDays,
		ConversionRate: g.ConversionRate,
	})
	if err != nil {
		return nil, err
	}
	return &GoalForecast{Goal: g, Forecast: f}, nil
}

// Rollover opens the current period for every business that had a goal in
// the previous one, carrying the target and conversion rate forward. Goals
// already set for the current period are left alone. It returns the number
// of goals opened.
func (s *GoalService) Rollover(ctx context.Context) (int, error) {
	now := s.now()
	current := domain.PeriodOf(now)
	start, _, err := domain.PeriodBounds(current)
	if err != nil {
		return 0, err
	}
	previous := domain.PeriodOf(start.AddDate(0, 0, -1))

	goals, err := s.goals.ListByPeriod(ctx, previous)
	if err != nil {
		return 0, fmt.Errorf("list goals for %s: %w", previous, err)
	}

	opened := 0
	for _, prev := range goals {
		created, err := s.goals.CreateIfAbsent(ctx, &domain.GoalPeriod{
			BusinessID:     prev.BusinessID,
			Period:         current,
			Target:         prev.Target,
			ConversionRate: prev.ConversionRate,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return opened, fmt.Errorf("open goal for %s: %w", prev.BusinessID, err)
		}
		if created {
			opened++
		}
	}

	s.logger.InfoContext(ctx, "goal periods rolled over",
		slog.String("from", previous),
		slog.String("to", current),
		slog.Int("opened", opened),
	)
	return opened, nil
}

func (s *GoalService) withProgress(ctx context.Context, g *domain.GoalPeriod, now time.Time) (*domain.GoalPeriod, error) {
	start, end, err := domain.PeriodBounds(g.Period)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	count, err := s.reviews.CountCreated(ctx, g.BusinessID, start, end)
	if err != nil {
		return nil, fmt.Errorf("count reviews in period: %w", err)
	}
	elapsed, total, err := domain.CalendarProgress(g.Period, now)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	out := *g
	out.Current = count
	out.DaysElapsed = elapsed
	out.TotalDays = total
	return &out, nil
}
