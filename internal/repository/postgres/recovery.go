package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/03aar/review-sub000/internal/domain"
	"github.com/03aar/review-sub000/pkg/database"
	apperrors "github.com/03aar/review-sub000/pkg/errors"
)

const recoveryCaseColumns = `id, review_id, business_id, stage, version, opened_at, updated_at`

// RecoveryCaseRepository implements repository.RecoveryCaseRepository using PostgreSQL.
type RecoveryCaseRepository struct {
	db database.DBTX
}

// NewRecoveryCaseRepository creates a new PostgreSQL-backed recovery case repository.
func NewRecoveryCaseRepository(db database.DBTX) *RecoveryCaseRepository {
	return &RecoveryCaseRepository{db: db}
}

// Create inserts a new recovery case.
func (r *RecoveryCaseRepository) Create(ctx context.Context, c *domain.RecoveryCase) (err error) {
	query := `
		INSERT INTO recovery_cases (` + recoveryCaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateRecoveryCase", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.ReviewID,
		c.BusinessID,
		string(c.Stage),
		c.Version,
		c.OpenedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("recovery case", "review_id", c.ReviewID)
		}
		return fmt.Errorf("insert recovery case: %w", err)
	}
	return nil
}

// GetByID retrieves a case and its history.
func (r *RecoveryCaseRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryCase, error) {
	return r.getOne(ctx, "GetRecoveryCase", "id", id)
}

// GetByReviewID retrieves the case opened for a review.
func (r *RecoveryCaseRepository) GetByReviewID(ctx context.Context, reviewID string) (*domain.RecoveryCase, error) {
	return r.getOne(ctx, "GetRecoveryCaseByReview", "review_id", reviewID)
}

func (r *RecoveryCaseRepository) getOne(ctx context.Context, op, column, value string) (c *domain.RecoveryCase, err error) {
	query := `SELECT ` + recoveryCaseColumns + ` FROM recovery_cases WHERE ` + column + ` = $1`

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	c, err = scanRecoveryCase(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("recovery case", value)
		}
		return nil, fmt.Errorf("get recovery case: %w", err)
	}

	c.History, err = r.history(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *RecoveryCaseRepository) history(ctx context.Context, caseID string) ([]domain.HistoryEntry, error) {
	query := `
		SELECT from_stage, to_stage, action, actor, at
		FROM recovery_case_history
		WHERE case_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("list recovery case history: %w", err)
	}
	defer rows.Close()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			h                    domain.HistoryEntry
			from, to, actionName string
		)
		if err := rows.Scan(&from, &to, &actionName, &h.Actor, &h.At); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		h.From = domain.Stage(from)
		h.To = domain.Stage(to)
		h.Action = domain.Action(actionName)
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

// List returns cases matching the filter with the total count.
func (r *RecoveryCaseRepository) List(ctx context.Context, filter domain.RecoveryCaseFilter) (cases []domain.RecoveryCase, total int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.BusinessID != "" {
		conditions = append(conditions, fmt.Sprintf("business_id = $%d", argIndex))
		args = append(args, filter.BusinessID)
		argIndex++
	}
	if filter.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", argIndex))
		args = append(args, string(filter.Stage))
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM recovery_cases
		%s
		ORDER BY opened_at DESC
		LIMIT $%d OFFSET $%d`,
		recoveryCaseColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListRecoveryCases", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recovery cases: %w", err)
	}
	defer rows.Close()

	cases = []domain.RecoveryCase{}
	for rows.Next() {
		var (
			c     domain.RecoveryCase
			stage string
		)
		if err := rows.Scan(
			&c.ID, &c.ReviewID, &c.BusinessID, &stage, &c.Version, &c.OpenedAt, &c.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan recovery case row: %w", err)
		}
		c.Stage = domain.Stage(stage)
		c.History = []domain.HistoryEntry{}
		cases = append(cases, c)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate recovery case rows: %w", err)
	}
	return cases, total, nil
}

// ApplyTransition performs the compare-and-set on version and appends the
// history entry in the same transaction.
func (r *RecoveryCaseRepository) ApplyTransition(ctx context.Context, next *domain.RecoveryCase, expectedVersion int, entry domain.HistoryEntry) (err error) {
	updateQuery := `
		UPDATE recovery_cases
		SET stage = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5`

	ctx, end := database.TraceQuery(ctx, "ApplyRecoveryTransition", updateQuery)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, updateQuery,
		string(next.Stage),
		next.Version,
		next.UpdatedAt,
		next.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update recovery case stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = apperrors.StaleWrite("recovery case", next.ID)
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO recovery_case_history (case_id, from_stage, to_stage, action, actor, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		next.ID,
		string(entry.From),
		string(entry.To),
		string(entry.Action),
		entry.Actor,
		entry.At,
	)
	if err != nil {
		return fmt.Errorf("insert recovery case history: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}
	return nil
}

// Stats counts the business's cases per stage.
func (r *RecoveryCaseRepository) Stats(ctx context.Context, businessID string, staleBefore time.Time) (stats domain.RecoveryStats, err error) {
	query := `
		SELECT stage, count(*), count(*) FILTER (WHERE stage = 'received' AND updated_at < $2)
		FROM recovery_cases
		WHERE business_id = $1
		GROUP BY stage`

	ctx, end := database.TraceQuery(ctx, "RecoveryCaseStats", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, businessID, staleBefore)
	if err != nil {
		return domain.RecoveryStats{}, fmt.Errorf("recovery case stats: %w", err)
	}
	defer rows.Close()

	stats.ByStage = make(map[domain.Stage]int)
	for rows.Next() {
		var (
			stage      string
			count, old int
		)
		if err := rows.Scan(&stage, &count, &old); err != nil {
			return domain.RecoveryStats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByStage[domain.Stage(stage)] = count
		stats.Total += count
		stats.StaleReceived += old
	}
	if err = rows.Err(); err != nil {
		return domain.RecoveryStats{}, fmt.Errorf("iterate stats rows: %w", err)
	}
	return stats, nil
}

func scanRecoveryCase(row pgx.Row) (*domain.RecoveryCase, error) {
	var (
		c     domain.RecoveryCase
		stage string
	)
	if err := row.Scan(&c.ID, &c.ReviewID, &c.BusinessID, &stage, &c.Version, &c.OpenedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Stage = domain.Stage(stage)
	return &c, nil
}
