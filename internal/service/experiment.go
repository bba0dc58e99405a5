package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/event"
	"github.com/03aar/review-sub000/internal/experiment"
	"github.com/03aar/review-sub000/internal/repository"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// ExperimentService runs review-request message experiments.
type ExperimentService struct {
	repo     repository.ExperimentRepository
	producer *event.Producer
	policy   experiment.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewExperimentService creates a new experiment service.
func NewExperimentService(repo repository.ExperimentRepository, producer *event.Producer, policy experiment.Policy, logger *slog.Logger) *ExperimentService {
	return &ExperimentService{
		repo:     repo,
		producer: producer,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateExperimentInput holds the parameters for starting an experiment.
type CreateExperimentInput struct {
	BusinessID string
	Name       string
	MessageA   string
	MessageB   string
	// AutoPromote overrides the configured default when set.
	AutoPromote *bool
}

// ExperimentView is an experiment together with its current evaluation.
type ExperimentView struct {
	Experiment *domain.Experiment     `json:"experiment"`
	Evaluation experiment.Evaluation `json:"evaluation"`
}

// SendResult reports which variant a send was routed to.
type SendResult struct {
	Experiment *domain.Experiment `json:"experiment"`
	Variant    domain.VariantKey  `json:"variant"`
	Message    string             `json:"message"`
}

// CreateExperiment starts a new active experiment.
func (s *ExperimentService) CreateExperiment(ctx context.Context, input *CreateExperimentInput) (*domain.Experiment, error) {
	if strings.TrimSpace(input.BusinessID) == "" {
		return nil, apperrors.InvalidInput("business_id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("experiment name is required")
	}
	if strings.TrimSpace(input.MessageA) == "" || strings.TrimSpace(input.MessageB) == "" {
		return nil, apperrors.InvalidInput("both variant messages are required")
	}
	if input.MessageA == input.MessageB {
		return nil, apperrors.InvalidInput("variant messages must differ")
	}

	autoPromote := s.policy.AutoPromote
	if input.AutoPromote != nil {
		autoPromote = *input.AutoPromote
	}

	e := experiment.New(input.BusinessID, input.Name, input.MessageA, input.MessageB, autoPromote, s.now())
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}

	s.logger.InfoContext(ctx, "experiment created",
		slog.String("experiment_id", e.ID),
		slog.String("business_id", e.BusinessID),
		slog.Bool("auto_promote", autoPromote),
	)
	return e, nil
}

// GetExperiment retrieves an experiment by its ID.
func (s *ExperimentService) GetExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return e, nil
}

// ListExperiments returns a business's experiments, newest first.
func (s *ExperimentService) ListExperiments(ctx context.Context, businessID string) ([]domain.Experiment, error) {
	list, err := s.repo.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	return list, nil
}

// Evaluate returns the experiment with a fresh statistical read.
func (s *ExperimentService) Evaluate(ctx context.Context, id string) (*ExperimentView, error) {
	e, err := s.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ExperimentView{Experiment: e, Evaluation: experiment.Evaluate(e.VariantA, e.VariantB, s.policy)}, nil
}

// RecordSend counts a review request sent with one variant. An empty
// variant lets the experiment route the send.
func (s *ExperimentService) RecordSend(ctx context.Context, id, variant string) (*SendResult, error) {
	if variant != "" && !domain.IsValidVariant(variant) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid variant %q, must be A or B", variant))
	}

	var key domain.VariantKey
	e, err := s.mutate(ctx, id, func(e *domain.Experiment) error {
		key = domain.VariantKey(variant)
		if key == "" {
			var err error
			if key, err = experiment.NextVariant(e); err != nil {
				return err
			}
		}
		return experiment.RecordSend(e, key)
	})
	if err != nil {
		return nil, err
	}
	return &SendResult{Experiment: e, Variant: key, Message: e.Variant(key).MessageText}, nil
}

// RecordConversion counts a review that came from a request sent with one
// variant. It may complete an auto-promoting experiment.
func (s *ExperimentService) RecordConversion(ctx context.Context, id, variant string) (*ExperimentView, error) {
	if !domain.IsValidVariant(variant) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid variant %q, must be A or B", variant))
	}

	var (
		ev       experiment.Evaluation
		promoted bool
	)
	e, err := s.mutate(ctx, id, func(e *domain.Experiment) error {
		if err := experiment.RecordConversion(e, domain.VariantKey(variant)); err != nil {
			return err
		}
		ev, promoted = experiment.MaybePromote(e, s.policy, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promoted {
		s.completed(ctx, e, ev, true)
	}
	return &ExperimentView{Experiment: e, Evaluation: ev}, nil
}

// Stop completes an active experiment, committing the leader only if it is
// significant.
func (s *ExperimentService) Stop(ctx context.Context, id string) (*ExperimentView, error) {
	var ev experiment.Evaluation
	e, err := s.mutate(ctx, id, func(e *domain.Experiment) error {
		var err error
		ev, err = experiment.Stop(e, s.policy, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.completed(ctx, e, ev, false)
	return &ExperimentView{Experiment: e, Evaluation: ev}, nil
}

// mutate applies fn to a fresh copy of the experiment and stores it under a
// compare-and-set on version, re-reading on a lost race.
func (s *ExperimentService) mutate(ctx context.Context, id string, fn func(*domain.Experiment) error) (*domain.Experiment, error) {
	for attempt := 1; ; attempt++ {
		e, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get experiment: %w", err)
		}

		if err := fn(e); err != nil {
			return nil, err
		}

		expected := e.Version
		e.Version++
		err = s.repo.Update(ctx, e, expected)
		if err == nil {
			return e, nil
		}
		if !errors.Is(err, apperrors.ErrStaleWrite) {
			return nil, fmt.Errorf("update experiment: %w", err)
		}
		StaleWrites.WithLabelValues("experiment").Inc()
		if attempt >= maxCASAttempts {
			return nil, err
		}
		s.logger.DebugContext(ctx, "experiment version conflict, retrying",
			slog.String("experiment_id", id),
			slog.Int("attempt", attempt),
		)
	}
}

func (s *ExperimentService) completed(ctx context.Context, e *domain.Experiment, ev experiment.Evaluation, autoPromoted bool) {
	outcome := "no_winner"
	if e.Winner != nil {
		outcome = "winner_" + strings.ToLower(string(*e.Winner))
	}
	ExperimentsCompleted.WithLabelValues(outcome).Inc()

	if err := s.producer.PublishExperimentCompleted(ctx, e, ev.Confidence, autoPromoted); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish experiment.completed event",
			slog.String("experiment_id", e.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "experiment completed",
		slog.String("experiment_id", e.ID),
		slog.String("outcome", outcome),
		slog.Float64("confidence", ev.Confidence),
		slog.Bool("auto_promoted", autoPromoted),
	)
}
