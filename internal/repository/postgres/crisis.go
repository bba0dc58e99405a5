package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/pkg/database"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

const crisisColumns = `business_id, active, dismissed, dismissed_by, negative_count_24h,
			baseline_daily_avg, ratio, triggered_at, evaluated_at`

// CrisisRepository implements repository.CrisisRepository using PostgreSQL.
type CrisisRepository struct {
	db database.DBTX
}

// NewCrisisRepository creates a new PostgreSQL-backed crisis state repository.
func NewCrisisRepository(db database.DBTX) *CrisisRepository {
	return &CrisisRepository{db: db}
}

// Get retrieves the crisis state of a business.
func (r *CrisisRepository) Get(ctx context.Context, businessID string) (s *domain.CrisisState, err error) {
	query := `SELECT ` + crisisColumns + ` FROM crisis_states WHERE business_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetCrisisState", query)
	defer func() { end(err) }()

	s, err = scanCrisis(r.db.QueryRow(ctx, query, businessID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("crisis state", businessID)
		}
		return nil, fmt.Errorf("get crisis state: %w", err)
	}
	return s, nil
}

// Save creates or replaces the crisis state of a business.
func (r *CrisisRepository) Save(ctx context.Context, s *domain.CrisisState) (err error) {
	query := `
		INSERT INTO crisis_states (` + crisisColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (business_id) DO UPDATE
		SET active = EXCLUDED.active,
			dismissed = EXCLUDED.dismissed,
			dismissed_by = EXCLUDED.dismissed_by,
			negative_count_24h = EXCLUDED.negative_count_24h,
			baseline_daily_avg = EXCLUDED.baseline_daily_avg,
			ratio = EXCLUDED.ratio,
			triggered_at = EXCLUDED.triggered_at,
			evaluated_at = EXCLUDED.evaluated_at`

	ctx, end := database.TraceQuery(ctx, "SaveCrisisState", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		s.BusinessID,
		s.Active,
		s.Dismissed,
		s.DismissedBy,
		s.NegativeCount24h,
		s.BaselineDailyAvg,
		s.Ratio,
		s.TriggeredAt,
		s.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("save crisis state: %w", err)
	}
	return nil
}

// ListActive returns every business in the active crisis state.
func (r *CrisisRepository) ListActive(ctx context.Context) (states []domain.CrisisState, err error) {
	query := `SELECT ` + crisisColumns + ` FROM crisis_states WHERE active ORDER BY business_id`

	ctx, end := database.TraceQuery(ctx, "ListActiveCrises", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active crises: %w", err)
	}
	defer rows.Close()

	states = []domain.CrisisState{}
	for rows.Next() {
		s, err := scanCrisis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crisis row: %w", err)
		}
		states = append(states, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crisis rows: %w", err)
	}
	return states, nil
}

func scanCrisis(row pgx.Row) (*domain.CrisisState, error) {
	var s domain.CrisisState
	if err := row.Scan(
		&s.BusinessID,
		&s.Active,
		&s.Dismissed,
		&s.DismissedBy,
		&s.NegativeCount24h,
		&s.BaselineDailyAvg,
		&s.Ratio,
		&s.TriggeredAt,
		&s.EvaluatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
