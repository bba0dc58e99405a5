package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/03aar/review-sub000/internal/authenticity"
	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/event"
	"github.com/03aar/review-sub000/internal/platform"
	"github.com/03aar/review-sub000/internal/scoring"
	pkgkafka "github.com/03aar/review-sub000/pkg/kafka"
)

// --- Mock Repositories ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) MarkPosted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockReviewRepository) CountNegative(ctx context.Context, businessID string, threshold int, from, to time.Time) (int, error) {
	args := m.Called(ctx, businessID, threshold, from, to)
	return args.Int(0), args.Error(1)
}

func (m *mockReviewRepository) CountCreated(ctx context.Context, businessID string, from, to time.Time) (int, error) {
	args := m.Called(ctx, businessID, from, to)
	return args.Int(0), args.Error(1)
}

func (m *mockReviewRepository) Aggregate(ctx context.Context, businessID string, recentSince time.Time) (domain.ReviewAggregate, error) {
	args := m.Called(ctx, businessID, recentSince)
	return args.Get(0).(domain.ReviewAggregate), args.Error(1)
}

func (m *mockReviewRepository) LikelihoodBands(ctx context.Context, businessID string, highBand, mediumBand int) (domain.LikelihoodBandCounts, error) {
	args := m.Called(ctx, businessID, highBand, mediumBand)
	return args.Get(0).(domain.LikelihoodBandCounts), args.Error(1)
}

func (m *mockReviewRepository) ListRecent(ctx context.Context, businessID string, limit int) ([]domain.Review, error) {
	args := m.Called(ctx, businessID, limit)
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) ActiveBusinesses(ctx context.Context, since time.Time) ([]string, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]string), args.Error(1)
}

type mockCaseRepository struct {
	mock.Mock
}

func (m *mockCaseRepository) Create(ctx context.Context, c *domain.RecoveryCase) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCaseRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecoveryCase), args.Error(1)
}

func (m *mockCaseRepository) GetByReviewID(ctx context.Context, reviewID string) (*domain.RecoveryCase, error) {
	args := m.Called(ctx, reviewID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecoveryCase), args.Error(1)
}

func (m *mockCaseRepository) List(ctx context.Context, filter domain.RecoveryCaseFilter) ([]domain.RecoveryCase, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.RecoveryCase), args.Int(1), args.Error(2)
}

func (m *mockCaseRepository) ApplyTransition(ctx context.Context, next *domain.RecoveryCase, expectedVersion int, entry domain.HistoryEntry) error {
	args := m.Called(ctx, next, expectedVersion, entry)
	return args.Error(0)
}

func (m *mockCaseRepository) Stats(ctx context.Context, businessID string, staleBefore time.Time) (domain.RecoveryStats, error) {
	args := m.Called(ctx, businessID, staleBefore)
	return args.Get(0).(domain.RecoveryStats), args.Error(1)
}

type mockExperimentRepository struct {
	mock.Mock
}

func (m *mockExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockExperimentRepository) GetByID(ctx context.Context, id string) (*domain.Experiment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *mockExperimentRepository) Update(ctx context.Context, e *domain.Experiment, expectedVersion int) error {
	args := m.Called(ctx, e, expectedVersion)
	return args.Error(0)
}

func (m *mockExperimentRepository) ListByBusiness(ctx context.Context, businessID string) ([]domain.Experiment, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).([]domain.Experiment), args.Error(1)
}

type mockGoalRepository struct {
	mock.Mock
}

func (m *mockGoalRepository) Upsert(ctx context.Context, g *domain.GoalPeriod) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}

func (m *mockGoalRepository) Get(ctx context.Context, businessID, period string) (*domain.GoalPeriod, error) {
	args := m.Called(ctx, businessID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GoalPeriod), args.Error(1)
}

func (m *mockGoalRepository) ListByPeriod(ctx context.Context, period string) ([]domain.GoalPeriod, error) {
	args := m.Called(ctx, period)
	return args.Get(0).([]domain.GoalPeriod), args.Error(1)
}

func (m *mockGoalRepository) CreateIfAbsent(ctx context.Context, g *domain.GoalPeriod) (bool, error) {
	args := m.Called(ctx, g)
	return args.Bool(0), args.Error(1)
}

type mockCrisisRepository struct {
	mock.Mock
}

func (m *mockCrisisRepository) Get(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CrisisState), args.Error(1)
}

func (m *mockCrisisRepository) Save(ctx context.Context, state *domain.CrisisState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockCrisisRepository) ListActive(ctx context.Context) ([]domain.CrisisState, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.CrisisState), args.Error(1)
}

type mockCrisisCache struct {
	mock.Mock
}

func (m *mockCrisisCache) Get(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CrisisState), args.Error(1)
}

func (m *mockCrisisCache) Set(ctx context.Context, state *domain.CrisisState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockCrisisCache) Delete(ctx context.Context, businessID string) error {
	args := m.Called(ctx, businessID)
	return args.Error(0)
}

// --- Mock Collaborators ---

type mockDrafter struct {
	mock.Mock
}

func (m *mockDrafter) Name() string { return "mock-drafter" }

func (m *mockDrafter) Draft(ctx context.Context, req platform.DraftRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockPoster struct {
	mock.Mock
}

func (m *mockPoster) Name() string { return "mock-poster" }

func (m *mockPoster) Post(ctx context.Context, req platform.PostRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// recordingPublisher captures published events in place of a Kafka producer.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*pkgkafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

// --- Test Helpers ---

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProducer() (*event.Producer, *recordingPublisher) {
	pub := &recordingPublisher{}
	return event.NewProducer(pub, newTestLogger()), pub
}

func clock() time.Time { return fixedNow }

func testAuthConfig() authenticity.Config {
	return authenticity.Config{
		Weights: authenticity.Weights{
			NewAccount:       30,
			GenericText:      25,
			BurstMember:      30,
			CategoryMismatch: 20,
		},
		HighBand:             80,
		MediumBand:           60,
		NewAccountMaxAgeDays: 14,
		GenericTextMinWords:  5,
		GenericPhrases:       []string{"great service", "highly recommend", "worst ever"},
	}
}

func testBombingConfig() authenticity.BombingConfig {
	return authenticity.BombingConfig{
		Multiplier:    4,
		MinBurstCount: 1,
		Window:        24 * time.Hour,
		BaselineDays:  30,
	}
}

func testScoringConfig() scoring.Config {
	return scoring.Config{
		RecentWindow:         30 * 24 * time.Hour,
		TopicMinReviews:      5,
		TopicSampleSize:      200,
		ResponseRateTarget:   80,
		SuspiciousShareLimit: 10,
		StaleCaseAfter:       48 * time.Hour,
	}
}

func newTestCrisisService(t *testing.T, reviews *mockReviewRepository, states *mockCrisisRepository) (*CrisisService, *recordingPublisher) {
	t.Helper()
	producer, pub := newTestProducer()
	svc := NewCrisisService(reviews, states, nil, producer, testBombingConfig(), 2, 4, newTestLogger())
	svc.now = clock
	return svc, pub
}

func intPtr(i int) *int {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}
