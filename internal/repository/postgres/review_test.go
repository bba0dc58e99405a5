package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/03aar/review-sub000/internal/domain"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var fixedTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func sampleReview() *domain.Review {
	age := 3
	likelihood := 85
	return &domain.Review{
		ID:                     "rev-001",
		BusinessID:             "biz-001",
		Rating:                 1,
		Sentiment:              domain.SentimentNegative,
		Text:                   "Worst ever.",
		Platform:               domain.PlatformGoogle,
		AuthorAccountAgeDays:   &age,
		AuthenticityLikelihood: &likelihood,
		Flags: []domain.Flag{
			{Reason: domain.FlagNewAccount, Weight: 30},
			{Reason: domain.FlagGenericText, Weight: 25},
			{Reason: domain.FlagBurstMember, Weight: 30},
		},
		CreatedAt: fixedTime,
	}
}

func reviewColumnNames() []string {
	return []string{
		"id", "business_id", "rating", "sentiment", "text", "platform",
		"author_account_age_days", "category_match", "posted_to_platform",
		"authenticity_likelihood", "flags", "created_at",
	}
}

func reviewRow(rows *pgxmock.Rows, rv *domain.Review) *pgxmock.Rows {
	flagsJSON, _ := json.Marshal(rv.Flags)
	return rows.AddRow(
		rv.ID, rv.BusinessID, rv.Rating, rv.Sentiment, rv.Text, rv.Platform,
		rv.AuthorAccountAgeDays, rv.CategoryMatch, rv.PostedToPlatform,
		rv.AuthenticityLikelihood, flagsJSON, rv.CreatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestReviewRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	rv := sampleReview()
	flagsJSON, _ := json.Marshal(rv.Flags)

	mock.ExpectExec("INSERT INTO reviews").
		WithArgs(rv.ID, rv.BusinessID, rv.Rating, rv.Sentiment, rv.Text, rv.Platform,
			rv.AuthorAccountAgeDays, rv.CategoryMatch, rv.PostedToPlatform,
			rv.AuthenticityLikelihood, flagsJSON, rv.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), rv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_Create_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectExec("INSERT INTO reviews").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), sampleReview())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestReviewRepository_GetByID_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	rv := sampleReview()

	mock.ExpectQuery("SELECT .+ FROM reviews WHERE id = \\$1").
		WithArgs(rv.ID).
		WillReturnRows(reviewRow(pgxmock.NewRows(reviewColumnNames()), rv))

	got, err := repo.GetByID(context.Background(), rv.ID)
	require.NoError(t, err)
	assert.Equal(t, rv.ID, got.ID)
	assert.Equal(t, 1, got.Rating)
	require.NotNil(t, got.AuthenticityLikelihood)
	assert.Equal(t, 85, *got.AuthenticityLikelihood)
	require.Len(t, got.Flags, 3)
	assert.Equal(t, domain.FlagBurstMember, got.Flags[2].Reason)
	assert.Nil(t, got.CategoryMatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM reviews").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// ---------------------------------------------------------------------------
// MarkPosted
// ---------------------------------------------------------------------------

func TestReviewRepository_MarkPosted(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectExec("UPDATE reviews SET posted_to_platform = TRUE").
		WithArgs("rev-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE reviews SET posted_to_platform = TRUE").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.MarkPosted(context.Background(), "rev-001"))
	err := repo.MarkPosted(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Counting
// ---------------------------------------------------------------------------

func TestReviewRepository_CountNegative(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	from := fixedTime.Add(-24 * time.Hour)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM reviews\\s+WHERE business_id = \\$1 AND rating <= \\$2").
		WithArgs("biz-001", 2, from, fixedTime).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountNegative(context.Background(), "biz-001", 2, from, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepository_CountNegative_Error(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("SELECT count").WillReturnError(errors.New("connection reset"))

	_, err := repo.CountNegative(context.Background(), "biz-001", 2, fixedTime, fixedTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count negative reviews")
}

func TestReviewRepository_CountCreated(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM reviews").
		WithArgs("biz-001", start, end).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(23))

	n, err := repo.CountCreated(context.Background(), "biz-001", start, end)
	require.NoError(t, err)
	assert.Equal(t, 23, n)
}

func TestReviewRepository_Aggregate(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)
	since := fixedTime.AddDate(0, 0, -30)

	mock.ExpectQuery("FROM reviews\\s+WHERE business_id = \\$1").
		WithArgs("biz-001", since).
		WillReturnRows(pgxmock.NewRows([]string{"count", "avg", "positive", "recent"}).AddRow(40, 4.1, 28, 6))

	agg, err := repo.Aggregate(context.Background(), "biz-001", since)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewAggregate{TotalReviews: 40, AverageRating: 4.1, PositiveCount: 28, RecentCount: 6}, agg)
}

func TestReviewRepository_LikelihoodBands(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("authenticity_likelihood IS NOT NULL").
		WithArgs("biz-001", 80, 60).
		WillReturnRows(pgxmock.NewRows([]string{"high", "medium", "informational"}).AddRow(2, 5, 33))

	c, err := repo.LikelihoodBands(context.Background(), "biz-001", 80, 60)
	require.NoError(t, err)
	assert.Equal(t, domain.LikelihoodBandCounts{High: 2, Medium: 5, Informational: 33}, c)
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

func TestReviewRepository_ListRecent(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	first := sampleReview()
	second := sampleReview()
	second.ID = "rev-002"
	second.Flags = nil
	second.AuthorAccountAgeDays = nil

	rows := pgxmock.NewRows(reviewColumnNames())
	reviewRow(rows, first)
	rows.AddRow(second.ID, second.BusinessID, 4, domain.SentimentPositive, "Lovely", domain.PlatformYelp,
		(*int)(nil), (*bool)(nil), false, (*int)(nil), []byte(nil), second.CreatedAt)

	mock.ExpectQuery("ORDER BY created_at DESC\\s+LIMIT \\$2").
		WithArgs("biz-001", 200).
		WillReturnRows(rows)

	reviews, err := repo.ListRecent(context.Background(), "biz-001", 200)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "rev-002", reviews[1].ID)
	assert.NotNil(t, reviews[1].Flags)
	assert.Empty(t, reviews[1].Flags)
	assert.Nil(t, reviews[1].AuthenticityLikelihood)
}

func TestReviewRepository_ActiveBusinesses(t *testing.T) {
	mock := newMock(t)
	repo := NewReviewRepository(mock)

	mock.ExpectQuery("SELECT DISTINCT business_id FROM reviews").
		WithArgs(fixedTime).
		WillReturnRows(pgxmock.NewRows([]string{"business_id"}).AddRow("biz-001").AddRow("biz-002"))

	ids, err := repo.ActiveBusinesses(context.Background(), fixedTime)
	require.NoError(t, err)
	assert.Equal(t, []string{"biz-001", "biz-002"}, ids)
}
