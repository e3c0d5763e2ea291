package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/pairsarb/internal/persistence"
)

// scoresRepo implements ScoresRepo for PostgreSQL
type scoresRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoresRepo creates a new PostgreSQL scores repository
func NewScoresRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoresRepo {
	return &scoresRepo{db: db, timeout: timeout}
}

// InsertScores adds the audit table of a run in one transaction
func (r *scoresRepo) InsertScores(ctx context.Context, rows []persistence.ScoreRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rows)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pair_scores (run_id, pair_a, pair_b, correlation, pvalue, method, half_life, spread_sigma, beta, score, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err = stmt.ExecContext(ctx,
			row.RunID, row.PairA, row.PairB, row.Correlation, row.PValue, row.Method,
			row.HalfLife, row.SpreadSigma, row.Beta, row.Score, row.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert score %s/%s: %w", row.PairA, row.PairB, err)
		}
	}

	return tx.Commit()
}

// InsertSelections adds the ranked selection of a run in one transaction
func (r *scoresRepo) InsertSelections(ctx context.Context, rows []persistence.SelectionRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pair_selections (run_id, rank, pair_a, pair_b, score)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.RunID, row.Rank, row.PairA, row.PairB, row.Score); err != nil {
			return fmt.Errorf("failed to insert selection rank %d: %w", row.Rank, err)
		}
	}

	return tx.Commit()
}

// ListSelections returns a run's selection in rank order
func (r *scoresRepo) ListSelections(ctx context.Context, runID string) ([]persistence.SelectionRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.SelectionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, rank, pair_a, pair_b, score
		FROM pair_selections
		WHERE run_id = $1
		ORDER BY rank ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	return rows, nil
}
