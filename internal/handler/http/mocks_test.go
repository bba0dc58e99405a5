package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/03aar/review-sub000/internal/authenticity"
	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/internal/event"
	"github.com/03aar/review-sub000/internal/experiment"
	platformmock "github.com/03aar/review-sub000/internal/platform/mock"
	"github.com/03aar/review-sub000/internal/recovery"
	"github.com/03aar/review-sub000/internal/scoring"
	"github.com/03aar/review-sub000/internal/service"
	"github.com/03aar/review-sub000/pkg/health"
	"github.com/03aar/review-sub000/pkg/httputil"
	pkgkafka "github.com/03aar/review-sub000/pkg/kafka"
	"github.com/03aar/review-sub000/pkg/middleware"
)

// ---------------------------------------------------------------------------
// Mock repositories
// ---------------------------------------------------------------------------

type mockReviewRepo struct {
	mock.Mock
}

func (m *mockReviewRepo) Create(ctx context.Context, review *domain.Review) error {
	return m.Called(ctx, review).Error(0)
}

func (m *mockReviewRepo) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepo) MarkPosted(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockReviewRepo) CountNegative(ctx context.Context, businessID string, threshold int, from, to time.Time) (int, error) {
	args := m.Called(ctx, businessID, threshold, from, to)
	return args.Int(0), args.Error(1)
}

func (m *mockReviewRepo) CountCreated(ctx context.Context, businessID string, from, to time.Time) (int, error) {
	args := m.Called(ctx, businessID, from, to)
	return args.Int(0), args.Error(1)
}

func (m *mockReviewRepo) Aggregate(ctx context.Context, businessID string, recentSince time.Time) (domain.ReviewAggregate, error) {
	args := m.Called(ctx, businessID, recentSince)
	return args.Get(0).(domain.ReviewAggregate), args.Error(1)
}

func (m *mockReviewRepo) LikelihoodBands(ctx context.Context, businessID string, highBand, mediumBand int) (domain.LikelihoodBandCounts, error) {
	args := m.Called(ctx, businessID, highBand, mediumBand)
	return args.Get(0).(domain.LikelihoodBandCounts), args.Error(1)
}

func (m *mockReviewRepo) ListRecent(ctx context.Context, businessID string, limit int) ([]domain.Review, error) {
	args := m.Called(ctx, businessID, limit)
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepo) ActiveBusinesses(ctx context.Context, since time.Time) ([]string, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]string), args.Error(1)
}

type mockCaseRepo struct {
	mock.Mock
}

func (m *mockCaseRepo) Create(ctx context.Context, c *domain.RecoveryCase) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCaseRepo) GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecoveryCase), args.Error(1)
}

func (m *mockCaseRepo) GetByReviewID(ctx context.Context, reviewID string) (*domain.RecoveryCase, error) {
	args := m.Called(ctx, reviewID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecoveryCase), args.Error(1)
}

func (m *mockCaseRepo) List(ctx context.Context, filter domain.RecoveryCaseFilter) ([]domain.RecoveryCase, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.RecoveryCase), args.Int(1), args.Error(2)
}

func (m *mockCaseRepo) ApplyTransition(ctx context.Context, next *domain.RecoveryCase, expectedVersion int, entry domain.HistoryEntry) error {
	return m.Called(ctx, next, expectedVersion, entry).Error(0)
}

func (m *mockCaseRepo) Stats(ctx context.Context, businessID string, staleBefore time.Time) (domain.RecoveryStats, error) {
	args := m.Called(ctx, businessID, staleBefore)
	return args.Get(0).(domain.RecoveryStats), args.Error(1)
}

type mockExperimentRepo struct {
	mock.Mock
}

func (m *mockExperimentRepo) Create(ctx context.Context, e *domain.Experiment) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockExperimentRepo) GetByID(ctx context.Context, id string) (*domain.Experiment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Experiment), args.Error(1)
}

func (m *mockExperimentRepo) Update(ctx context.Context, e *domain.Experiment, expectedVersion int) error {
	return m.Called(ctx, e, expectedVersion).Error(0)
}

func (m *mockExperimentRepo) ListByBusiness(ctx context.Context, businessID string) ([]domain.Experiment, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).([]domain.Experiment), args.Error(1)
}

type mockGoalRepo struct {
	mock.Mock
}

func (m *mockGoalRepo) Upsert(ctx context.Context, g *domain.GoalPeriod) error {
	return m.Called(ctx, g).Error(0)
}

func (m *mockGoalRepo) Get(ctx context.Context, businessID, period string) (*domain.GoalPeriod, error) {
	args := m.Called(ctx, businessID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GoalPeriod), args.Error(1)
}

func (m *mockGoalRepo) ListByPeriod(ctx context.Context, period string) ([]domain.GoalPeriod, error) {
	args := m.Called(ctx, period)
	return args.Get(0).([]domain.GoalPeriod), args.Error(1)
}

func (m *mockGoalRepo) CreateIfAbsent(ctx context.Context, g *domain.GoalPeriod) (bool, error) {
	args := m.Called(ctx, g)
	return args.Bool(0), args.Error(1)
}

type mockCrisisRepo struct {
	mock.Mock
}

func (m *mockCrisisRepo) Get(ctx context.Context, businessID string) (*domain.CrisisState, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CrisisState), args.Error(1)
}

func (m *mockCrisisRepo) Save(ctx context.Context, state *domain.CrisisState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *mockCrisisRepo) ListActive(ctx context.Context) ([]domain.CrisisState, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.CrisisState), args.Error(1)
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type testRepos struct {
	reviews     *mockReviewRepo
	cases       *mockCaseRepo
	experiments *mockExperimentRepo
	goals       *mockGoalRepo
	crisis      *mockCrisisRepo
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupRouter wires real services over mock repositories behind the
// production router.
func setupRouter(t *testing.T) (http.Handler, *testRepos) {
	t.Helper()
	logger := newTestLogger()
	repos := &testRepos{
		reviews:     new(mockReviewRepo),
		cases:       new(mockCaseRepo),
		experiments: new(mockExperimentRepo),
		goals:       new(mockGoalRepo),
		crisis:      new(mockCrisisRepo),
	}

	producer := event.NewProducer(discardPublisher{}, logger)
	auth := authenticity.Config{
		Weights:              authenticity.Weights{NewAccount: 30, GenericText: 25, BurstMember: 30, CategoryMismatch: 20},
		HighBand:             80,
		MediumBand:           60,
		NewAccountMaxAgeDays: 14,
		GenericTextMinWords:  5,
	}
	bombing := authenticity.BombingConfig{Multiplier: 4, MinBurstCount: 1, Window: 24 * time.Hour, BaselineDays: 30}
	scoringCfg := scoring.Config{
		RecentWindow:         30 * 24 * time.Hour,
		TopicMinReviews:      5,
		TopicSampleSize:      200,
		ResponseRateTarget:   80,
		SuspiciousShareLimit: 10,
		StaleCaseAfter:       48 * time.Hour,
	}

	crisisSvc := service.NewCrisisService(repos.reviews, repos.crisis, nil, producer, bombing, 2, 4, logger)
	svcs := Services{
		Reviews:     service.NewReviewService(repos.reviews, repos.cases, crisisSvc, producer, auth, recovery.Policy{NegativeRatingThreshold: 2}, scoringCfg, logger),
		Recovery:    service.NewRecoveryService(repos.cases, repos.reviews, platformmock.NewDrafter(logger), platformmock.NewPoster(logger), producer, logger),
		Crisis:      crisisSvc,
		Analytics:   service.NewAnalyticsService(repos.reviews, repos.cases, crisisSvc, auth, scoringCfg, logger),
		Experiments: service.NewExperimentService(repos.experiments, producer, experiment.Policy{SignificanceThreshold: 95, AutoPromote: true}, logger),
		Goals:       service.NewGoalService(repos.goals, repos.reviews, logger),
	}

	router := NewRouter(svcs, health.NewHandler(), RouterConfig{CORS: middleware.DefaultCORSConfig()}, logger)
	return router, repos
}

func doRequest(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// decodeData re-decodes the envelope's data field into dst.
func decodeData(t *testing.T, resp httputil.Response, dst any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}
