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

const goalColumns = `business_id, period, target, conversion_rate, created_at, updated_at`

// GoalRepository implements repository.GoalRepository using PostgreSQL.
type GoalRepository struct {
	db database.DBTX
}

// NewGoalRepository creates a new PostgreSQL-backed goal repository.
func NewGoalRepository(db database.DBTX) *GoalRepository {
	return &GoalRepository{db: db}
}

// Upsert creates or replaces a goal period.
func (r *GoalRepository) Upsert(ctx context.Context, g *domain.GoalPeriod) (err error) {
	query := `
		INSERT INTO goal_periods (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, period) DO UPDATE
		SET target = EXCLUDED.target,
			conversion_rate = EXCLUDED.conversion_rate,
			updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertGoal", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query, g.BusinessID, g.Period, g.Target, g.ConversionRate, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert goal period: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts g unless its period already has a goal.
func (r *GoalRepository) CreateIfAbsent(ctx context.Context, g *domain.GoalPeriod) (created bool, err error) {
	query := `
		INSERT INTO goal_periods (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, period) DO NOTHING`

	ctx, end := database.TraceQuery(ctx, "CreateGoalIfAbsent", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query, g.BusinessID, g.Period, g.Target, g.ConversionRate, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert goal period: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get retrieves a goal period.
func (r *GoalRepository) Get(ctx context.Context, businessID, period string) (g *domain.GoalPeriod, err error) {
	query := `SELECT ` + goalColumns + ` FROM goal_periods WHERE business_id = $1 AND period = $2`

	ctx, end := database.TraceQuery(ctx, "GetGoal", query)
	defer func() { end(err) }()

	g, err = scanGoal(r.db.QueryRow(ctx, query, businessID, period))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("goal period", businessID+"/"+period)
		}
		return nil, fmt.Errorf("get goal period: %w", err)
	}
	return g, nil
}

// ListByPeriod returns every goal set for a period.
func (r *GoalRepository) ListByPeriod(ctx context.Context, period string) (goals []domain.GoalPeriod, err error) {
	query := `SELECT ` + goalColumns + ` FROM goal_periods WHERE period = $1 ORDER BY business_id`

	ctx, end := database.TraceQuery(ctx, "ListGoalsByPeriod", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, period)
	if err != nil {
		return nil, fmt.Errorf("list goal periods: %w", err)
	}
	defer rows.Close()

	goals = []domain.GoalPeriod{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal row: %w", err)
		}
		goals = append(goals, *g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goal rows: %w", err)
	}
	return goals, nil
}

func scanGoal(row pgx.Row) (*domain.GoalPeriod, error) {
	var g domain.GoalPeriod
	if err := row.Scan(&g.BusinessID, &g.Period, &g.Target, &g.ConversionRate, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}
