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
	"github.com/03aar/review-sub000/internal/platform"
	"github.com/03aar/review-sub000/internal/recovery"
	"github.com/03aar/review-sub000/internal/repository"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// maxCASAttempts bounds re-read-and-retry loops for writes that are not
// driven by a caller holding a version.
const maxCASAttempts = 3

// Respond actions.
const (
	RespondApprove    = "approve"
	RespondEdit       = "edit"
	RespondRegenerate = "regenerate"
)

// RecoveryService drives recovery cases through the pipeline.
type RecoveryService struct {
	cases    repository.RecoveryCaseRepository
	reviews  repository.ReviewRepository
	drafter  platform.Drafter
	poster   platform.Poster
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(
	cases repository.RecoveryCaseRepository,
	reviews repository.ReviewRepository,
	drafter platform.Drafter,
	poster platform.Poster,
	producer *event.Producer,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		cases:    cases,
		reviews:  reviews,
		drafter:  drafter,
		poster:   poster,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetCase retrieves a recovery case with its history.
func (s *RecoveryService) GetCase(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get recovery case: %w", err)
	}
	return c, nil
}

// ListCases returns a page of cases with the total count.
func (s *RecoveryService) ListCases(ctx context.Context, filter domain.RecoveryCaseFilter) ([]domain.RecoveryCase, int, error) {
	if filter.Stage != "" && !domain.IsValidStage(string(filter.Stage)) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("invalid stage %q", filter.Stage))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	cases, total, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list recovery cases: %w", err)
	}
	return cases, total, nil
}

// TransitionInput holds the parameters for moving a case.
type TransitionInput struct {
	CaseID string
	Action string
	Actor  string
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int
}

// Transition applies one action to a case under a compare-and-set on its
// version. A rejected action leaves the case unchanged.
func (s *RecoveryService) Transition(ctx context.Context, input *TransitionInput) (*domain.RecoveryCase, error) {
	if !domain.IsValidAction(input.Action) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid action %q", input.Action))
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, apperrors.InvalidInput("actor is required")
	}

	c, err := s.cases.GetByID(ctx, input.CaseID)
	if err != nil {
		return nil, fmt.Errorf("get recovery case: %w", err)
	}
	if input.ExpectedVersion != nil && *input.ExpectedVersion != c.Version {
		StaleWrites.WithLabelValues("recovery_case").Inc()
		return nil, apperrors.StaleWrite("recovery case", c.ID)
	}

	return s.apply(ctx, c, domain.Action(input.Action), input.Actor)
}

// RespondInput holds the parameters for responding to a review.
type RespondInput struct {
	ReviewID string
	Action   string
	// Text is the response to post. Required for edit; for approve an empty
	// text asks the drafter for one.
	Text  string
	Hint  string
	Actor string
	// ExpectedVersion, when set, must match the stored case version.
	ExpectedVersion *int
}

// RespondResult is the outcome of a respond call.
type RespondResult struct {
	Case     *domain.RecoveryCase `json:"case,omitempty"`
	Response string               `json:"response"`
	Posted   bool                 `json:"posted"`
}

// Respond handles the staff response workflow for a review. Regenerate asks
// the drafter for fresh text and leaves the case where it is. Approve and
// edit post the response to the platform and advance the case to responded.
// A review without a recovery case is answered on the platform only, once.
func (s *RecoveryService) Respond(ctx context.Context, input *RespondInput) (*RespondResult, error) {
	switch input.Action {
	case RespondApprove, RespondEdit, RespondRegenerate:
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid respond action %q, must be one of: approve, edit, regenerate", input.Action))
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, apperrors.InvalidInput("actor is required")
	}
	if input.Action == RespondEdit && strings.TrimSpace(input.Text) == "" {
		return nil, apperrors.InvalidInput("text is required when editing a response")
	}

	review, err := s.reviews.GetByID(ctx, input.ReviewID)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	c, err := s.cases.GetByReviewID(ctx, input.ReviewID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("get recovery case for review: %w", err)
	}

	if input.Action == RespondRegenerate {
		text, err := s.drafter.Draft(ctx, platform.NewDraftRequest(review, input.Hint))
		if err != nil {
			return nil, fmt.Errorf("draft response: %w", err)
		}
		s.logger.InfoContext(ctx, "response regenerated",
			slog.String("review_id", review.ID),
		)
		return &RespondResult{Case: c, Response: text}, nil
	}

	// Reject before anything reaches the platform.
	if c == nil {
		if review.PostedToPlatform {
			return nil, apperrors.Conflict(fmt.Sprintf("review %s already has a posted response", review.ID))
		}
	} else {
		if _, err := recovery.Next(c.Stage, domain.ActionRespond); err != nil {
			return nil, err
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != c.Version {
			StaleWrites.WithLabelValues("recovery_case").Inc()
			return nil, apperrors.StaleWrite("recovery case", c.ID)
		}
	}

	text := input.Text
	if strings.TrimSpace(text) == "" {
		text, err = s.drafter.Draft(ctx, platform.NewDraftRequest(review, input.Hint))
		if err != nil {
			return nil, fmt.Errorf("draft response: %w", err)
		}
	}

	if err := s.poster.Post(ctx, platform.PostRequest{
		ReviewID: review.ID,
		Platform: review.Platform,
		Response: text,
		Actor:    input.Actor,
	}); err != nil {
		return nil, fmt.Errorf("post response: %w", err)
	}
	if err := s.reviews.MarkPosted(ctx, review.ID); err != nil {
		return nil, fmt.Errorf("mark review posted: %w", err)
	}
	if c == nil {
		s.logger.InfoContext(ctx, "response posted for review without recovery case",
			slog.String("review_id", review.ID),
		)
		return &RespondResult{Response: text, Posted: true}, nil
	}

	next, err := s.apply(ctx, c, domain.ActionRespond, input.Actor)
	if err != nil {
		return nil, err
	}
	return &RespondResult{Case: next, Response: text, Posted: true}, nil
}

// ApplyRatingRevision moves the review's case from returned to updated when
// the reviewer revises their rating. Revisions for reviews without a case,
// or whose case is not awaiting one, are logged and ignored.
func (s *RecoveryService) ApplyRatingRevision(ctx context.Context, reviewID string, newRating int, actor string) error {
	for attempt := 1; ; attempt++ {
		c, err := s.cases.GetByReviewID(ctx, reviewID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.logger.InfoContext(ctx, "rating revision for review without recovery case",
					slog.String("review_id", reviewID),
				)
				return nil
			}
			return fmt.Errorf("get recovery case for review: %w", err)
		}
		if !recovery.Permitted(c.Stage, domain.StageUpdated, domain.ActionRatingRevised) {
			s.logger.InfoContext(ctx, "rating revision ignored for case not awaiting one",
				slog.String("case_id", c.ID),
				slog.String("stage", string(c.Stage)),
				slog.Int("new_rating", newRating),
			)
			return nil
		}

		_, err = s.apply(ctx, c, domain.ActionRatingRevised, actor)
		if errors.Is(err, apperrors.ErrStaleWrite) && attempt < maxCASAttempts {
			continue
		}
		return err
	}
}

func (s *RecoveryService) apply(ctx context.Context, c *domain.RecoveryCase, action domain.Action, actor string) (*domain.RecoveryCase, error) {
	next, entry, err := recovery.Apply(c, action, actor, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.cases.ApplyTransition(ctx, next, c.Version, entry); err != nil {
		if errors.Is(err, apperrors.ErrStaleWrite) {
			StaleWrites.WithLabelValues("recovery_case").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	RecoveryTransitions.WithLabelValues(string(action), string(entry.To)).Inc()

	if err := s.producer.PublishRecoveryStageChanged(ctx, next, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish recovery.stage_changed event",
			slog.String("case_id", next.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "recovery case transitioned",
		slog.String("case_id", next.ID),
		slog.String("from", string(entry.From)),
		slog.String("to", string(entry.To)),
		slog.String("action", string(action)),
		slog.String("actor", actor),
		slog.Int("version", next.Version),
	)
	return next, nil
}
