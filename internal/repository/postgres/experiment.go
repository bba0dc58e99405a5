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

const experimentColumns = `id, business_id, name,
			variant_a_message, variant_a_sent, variant_a_conv, variant_a_retired,
			variant_b_message, variant_b_sent, variant_b_conv, variant_b_retired,
			status, winner, auto_promote, version, started_at, completed_at`

// ExperimentRepository implements repository.ExperimentRepository using PostgreSQL.
type ExperimentRepository struct {
	db database.DBTX
}

// NewExperimentRepository creates a new PostgreSQL-backed experiment repository.
func NewExperimentRepository(db database.DBTX) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// Create inserts a new experiment.
func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) (err error) {
	query := `
		INSERT INTO experiments (` + experimentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	ctx, end := database.TraceQuery(ctx, "CreateExperiment", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		e.ID,
		e.BusinessID,
		e.Name,
		e.VariantA.MessageText,
		e.VariantA.Sent,
		e.VariantA.Converted,
		e.VariantA.Retired,
		e.VariantB.MessageText,
		e.VariantB.Sent,
		e.VariantB.Converted,
		e.VariantB.Retired,
		e.Status,
		winnerValue(e.Winner),
		e.AutoPromote,
		e.Version,
		e.StartedAt,
		e.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("experiment", "id", e.ID)
		}
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// GetByID retrieves an experiment by its ID.
func (r *ExperimentRepository) GetByID(ctx context.Context, id string) (e *domain.Experiment, err error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetExperiment", query)
	defer func() { end(err) }()

	e, err = scanExperiment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("experiment", id)
		}
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return e, nil
}

// Update stores e under a compare-and-set on version.
func (r *ExperimentRepository) Update(ctx context.Context, e *domain.Experiment, expectedVersion int) (err error) {
	query := `
		UPDATE experiments SET
			variant_a_sent = $1, variant_a_conv = $2, variant_a_retired = $3,
			variant_b_sent = $4, variant_b_conv = $5, variant_b_retired = $6,
			status = $7, winner = $8, version = $9, completed_at = $10
		WHERE id = $11 AND version = $12`

	ctx, end := database.TraceQuery(ctx, "UpdateExperiment", query)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, query,
		e.VariantA.Sent,
		e.VariantA.Converted,
		e.VariantA.Retired,
		e.VariantB.Sent,
		e.VariantB.Converted,
		e.VariantB.Retired,
		e.Status,
		winnerValue(e.Winner),
		e.Version,
		e.CompletedAt,
		e.ID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update experiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = apperrors.StaleWrite("experiment", e.ID)
		return err
	}
	return nil
}

// ListByBusiness returns the business's experiments, newest first.
func (r *ExperimentRepository) ListByBusiness(ctx context.Context, businessID string) (experiments []domain.Experiment, err error) {
	query := `SELECT ` + experimentColumns + `
		FROM experiments
		WHERE business_id = $1
		ORDER BY started_at DESC`

	ctx, end := database.TraceQuery(ctx, "ListExperiments", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	experiments = []domain.Experiment{}
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment row: %w", err)
		}
		experiments = append(experiments, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiment rows: %w", err)
	}
	return experiments, nil
}

func winnerValue(w *domain.VariantKey) *string {
	if w == nil {
		return nil
	}
	s := string(*w)
	return &s
}

func scanExperiment(row pgx.Row) (*domain.Experiment, error) {
	var (
		e      domain.Experiment
		winner *string
	)
	if err := row.Scan(
		&e.ID,
		&e.BusinessID,
		&e.Name,
		&e.VariantA.MessageText,
		&e.VariantA.Sent,
		&e.VariantA.Converted,
		&e.VariantA.Retired,
		&e.VariantB.MessageText,
		&e.VariantB.Sent,
		&e.VariantB.Converted,
		&e.VariantB.Retired,
		&e.Status,
		&winner,
		&e.AutoPromote,
		&e.Version,
		&e.StartedAt,
		&e.CompletedAt,
	); err != nil {
		return nil, err
	}
	if winner != nil {
		k := domain.VariantKey(*winner)
		e.Winner = &k
	}
	return &e, nil
}
