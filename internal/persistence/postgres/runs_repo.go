package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/pairsarb/internal/persistence"
)

// runsRepo implements RunsRepo for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a new PostgreSQL runs repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunsRepo {
	return &runsRepo{db: db, timeout: timeout}
}

// Insert records a run
func (r *runsRepo) Insert(ctx context.Context, run persistence.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	query := `
		INSERT INTO pair_runs (run_id, started_at, as_of, universe, params, pairs, selected, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		run.RunID, run.StartedAt, run.AsOf, pq.Array(run.Universe), run.Params,
		run.Pairs, run.Selected, run.Failed).
		Scan(&run.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("duplicate run %s: %w", run.RunID, err)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get returns a run by ID, or nil when it does not exist
func (r *runsRepo) Get(ctx context.Context, runID string) (*persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, started_at, as_of, universe, params, pairs, selected, failed, created_at
		FROM pair_runs
		WHERE run_id = $1`

	run, err := scanRun(r.db.QueryRowxContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// Latest returns the most recent runs
func (r *runsRepo) Latest(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, started_at, as_of, universe, params, pairs, selected, failed, created_at
		FROM pair_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	var runs []persistence.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*persistence.RunRecord, error) {
	var run persistence.RunRecord
	err := row.Scan(&run.RunID, &run.StartedAt, &run.AsOf, pq.Array(&run.Universe), &run.Params,
		&run.Pairs, &run.Selected, &run.Failed, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
