package repository

import (
	"context"
	"time"

	"github.com/03aar/review-sub000/internal/domain"
)

// ReviewRepository persists the append-only review log. Reviews are never
// updated except for the posted_to_platform marker, so counting reads never
// contend with ingestion writes.
type ReviewRepository interface {
	// Create appends a review to the log.
	Create(ctx context.Context, review *domain.Review) error

	// GetByID retrieves a review by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// MarkPosted records that a response to the review was posted on its platform.
	MarkPosted(ctx context.Context, id string) error

	// CountNegative counts reviews at or below threshold created in [from, to).
	CountNegative(ctx context.Context, businessID string, threshold int, from, to time.Time) (int, error)

	// CountCreated counts all reviews created in [from, to).
	CountCreated(ctx context.Context, businessID string, from, to time.Time) (int, error)

	// Aggregate summarizes a business's reviews; RecentCount covers reviews
	// created at or after recentSince.
	Aggregate(ctx context.Context, businessID string, recentSince time.Time) (domain.ReviewAggregate, error)

	// LikelihoodBands counts scored reviews per authenticity band.
	LikelihoodBands(ctx context.Context, businessID string, highBand, mediumBand int) (domain.LikelihoodBandCounts, error)

	// ListRecent returns up to limit of the business's newest reviews.
	ListRecent(ctx context.Context, businessID string, limit int) ([]domain.Review, error)

	// ActiveBusinesses returns businesses with at least one review since the given time.
	ActiveBusinesses(ctx context.Context, since time.Time) ([]string, error)
}

// RecoveryCaseRepository persists recovery cases and their history.
type RecoveryCaseRepository interface {
	// Create inserts a new case. A second case for the same review is rejected.
	Create(ctx context.Context, c *domain.RecoveryCase) error

	// GetByID retrieves a case with its full history.
	GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error)

	// GetByReviewID retrieves the case opened for a review, with history.
	GetByReviewID(ctx context.Context, reviewID string) (*domain.RecoveryCase, error)

	// List returns cases matching the filter, without history, and the total count.
	List(ctx context.Context, filter domain.RecoveryCaseFilter) ([]domain.RecoveryCase, int, error)

	// ApplyTransition stores next and appends entry, provided the stored
	// version still equals expectedVersion. Otherwise it returns a StaleWrite
	// error and changes nothing.
	ApplyTransition(ctx context.Context, next *domain.RecoveryCase, expectedVersion int, entry domain.HistoryEntry) error

	// Stats counts the business's cases by stage and the received cases last
	// touched before staleBefore.
	Stats(ctx context.Context, businessID string, staleBefore time.Time) (domain.RecoveryStats, error)
}

// ExperimentRepository persists message experiments.
type ExperimentRepository interface {
	// Create inserts a new experiment.
	Create(ctx context.Context, e *domain.Experiment) error

	// GetByID retrieves an experiment by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Experiment, error)

	// Update stores e if the stored version equals expectedVersion, else
	// returns a StaleWrite error. e.Version must already be incremented.
	Update(ctx context.Context, e *domain.Experiment, expectedVersion int) error

	// ListByBusiness returns the business's experiments, newest first.
	ListByBusiness(ctx context.Context, businessID string) ([]domain.Experiment, error)
}

// GoalRepository persists monthly review-volume goals. Current progress is
// derived from the review log rather than stored.
type GoalRepository interface {
	// Upsert creates or replaces the goal for the business and period.
	Upsert(ctx context.Context, g *domain.GoalPeriod) error

	// Get retrieves the goal for the business and period.
	Get(ctx context.Context, businessID, period string) (*domain.GoalPeriod, error)

	// ListByPeriod returns every goal set for a period.
	ListByPeriod(ctx context.Context, period string) ([]domain.GoalPeriod, error)

	// CreateIfAbsent inserts g unless a goal already exists for its business
	// and period. It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, g *domain.GoalPeriod) (bool, error)
}

// CrisisRepository persists per-business review-bombing state.
type CrisisRepository interface {
	// Get retrieves the crisis state of a business.
	Get(ctx context.Context, businessID string) (*domain.CrisisState, error)

	// Save creates or replaces the crisis state of a business.
	Save(ctx context.Context, state *domain.CrisisState) error

	// ListActive returns every business currently in the active state.
	ListActive(ctx context.Context) ([]domain.CrisisState, error)
}

// CrisisCache is a read-through cache in front of CrisisRepository.
type CrisisCache interface {
	Get(ctx context.Context, businessID string) (*domain.CrisisState, error)
	Set(ctx context.Context, state *domain.CrisisState) error
	Delete(ctx context.Context, businessID string) error
}
