package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/pkg/database"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

const reviewColumns = `id, business_id, rating, sentiment, text, platform,
			author_account_age_days, category_match, posted_to_platform,
			authenticity_likelihood, flags, created_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	db database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(db database.DBTX) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create appends a review to the log.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	flags := rv.Flags
	if flags == nil {
		flags = []domain.Flag{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}

	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		rv.ID,
		rv.BusinessID,
		rv.Rating,
		rv.Sentiment,
		rv.Text,
		rv.Platform,
		rv.AuthorAccountAgeDays,
		rv.CategoryMatch,
		rv.PostedToPlatform,
		rv.AuthenticityLikelihood,
		flagsJSON,
		rv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("review", "id", rv.ID)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (rv *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReview", query)
	defer func() { end(err) }()

	rv, err = scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

// MarkPosted sets posted_to_platform on a review.
func (r *ReviewRepository) MarkPosted(ctx context.Context, id string) (err error) {
	query := `UPDATE reviews SET posted_to_platform = TRUE WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "MarkReviewPosted", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark review posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// CountNegative counts reviews rated at or below threshold in [from, to).
func (r *ReviewRepository) CountNegative(ctx context.Context, businessID string, threshold int, from, to time.Time) (n int, err error) {
	query := `
		SELECT count(*) FROM reviews
		WHERE business_id = $1 AND rating <= $2 AND created_at >= $3 AND created_at < $4`

	ctx, end := database.TraceQuery(ctx, "CountNegativeReviews", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, businessID, threshold, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("count negative reviews: %w", err)
	}
	return n, nil
}

// CountCreated counts reviews created in [from, to).
func (r *ReviewRepository) CountCreated(ctx context.Context, businessID string, from, to time.Time) (n int, err error) {
	query := `
		SELECT count(*) FROM reviews
		WHERE business_id = $1 AND created_at >= $2 AND created_at < $3`

	ctx, end := database.TraceQuery(ctx, "CountReviews", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, businessID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}

// Aggregate summarizes a business's review log.
func (r *ReviewRepository) Aggregate(ctx context.Context, businessID string, recentSince time.Time) (agg domain.ReviewAggregate, err error) {
	query := `
		SELECT count(*),
			   COALESCE(avg(rating), 0)::float8,
			   count(*) FILTER (WHERE sentiment = 'positive'),
			   count(*) FILTER (WHERE created_at >= $2)
		FROM reviews
		WHERE business_id = $1`

	ctx, end := database.TraceQuery(ctx, "AggregateReviews", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query, businessID, recentSince).Scan(
		&agg.TotalReviews,
		&agg.AverageRating,
		&agg.PositiveCount,
		&agg.RecentCount,
	)
	if err != nil {
		return domain.ReviewAggregate{}, fmt.Errorf("aggregate reviews: %w", err)
	}
	return agg, nil
}

// LikelihoodBands counts scored reviews per authenticity band.
func (r *ReviewRepository) LikelihoodBands(ctx context.Context, businessID string, highBand, mediumBand int) (c domain.LikelihoodBandCounts, err error) {
	query := `
		SELECT count(*) FILTER (WHERE authenticity_likelihood >= $2),
			   count(*) FILTER (WHERE authenticity_likelihood >= $3 AND authenticity_likelihood < $2),
			   count(*) FILTER (WHERE authenticity_likelihood < $3)
		FROM reviews
		WHERE business_id = $1 AND authenticity_likelihood IS NOT NULL`

	ctx, end := database.TraceQuery(ctx, "CountLikelihoodBands", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, businessID, highBand, mediumBand).Scan(&c.High, &c.Medium, &c.Informational); err != nil {
		return domain.LikelihoodBandCounts{}, fmt.Errorf("count likelihood bands: %w", err)
	}
	return c, nil
}

// ListRecent returns the business's newest reviews.
func (r *ReviewRepository) ListRecent(ctx context.Context, businessID string, limit int) (reviews []domain.Review, err error) {
	query := `SELECT ` + reviewColumns + `
		FROM reviews
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListRecentReviews", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent reviews: %w", err)
	}
	defer rows.Close()

	reviews = []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, nil
}

// ActiveBusinesses returns the businesses with reviews since the given time.
func (r *ReviewRepository) ActiveBusinesses(ctx context.Context, since time.Time) (ids []string, err error) {
	query := `SELECT DISTINCT business_id FROM reviews WHERE created_at >= $1 ORDER BY business_id`

	ctx, end := database.TraceQuery(ctx, "ListActiveBusinesses", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("list active businesses: %w", err)
	}
	defer rows.Close()

	ids = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan business id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business ids: %w", err)
	}
	return ids, nil
}

func scanReview(row pgx.Row) (*domain.Review, error) {
	var (
		rv        domain.Review
		flagsJSON []byte
	)
	if err := row.Scan(
		&rv.ID,
		&rv.BusinessID,
		&rv.Rating,
		&rv.Sentiment,
		&rv.Text,
		&rv.Platform,
		&rv.AuthorAccountAgeDays,
		&rv.CategoryMatch,
		&rv.PostedToPlatform,
		&rv.AuthenticityLikelihood,
		&flagsJSON,
		&rv.CreatedAt,
	); err != nil {
		return nil, err
	}

	if flagsJSON != nil {
		if err := json.Unmarshal(flagsJSON, &rv.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal flags: %w", err)
		}
	}
	if rv.Flags == nil {
		rv.Flags = []domain.Flag{}
	}
	return &rv, nil
}
