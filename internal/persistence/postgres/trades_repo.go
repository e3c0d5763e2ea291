package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/pairsarb/internal/persistence"
)

// backtestRepo implements BacktestRepo for PostgreSQL
type backtestRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBacktestRepo creates a new PostgreSQL backtest repository
func NewBacktestRepo(db *sqlx.DB, timeout time.Duration) persistence.BacktestRepo {
	return &backtestRepo{db: db, timeout: timeout}
}

// InsertTrades adds closed trades atomically
func (r *backtestRepo) InsertTrades(ctx context.Context, trades []persistence.TradeRow) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(trades)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, pair_a, pair_b, entry_ts, exit_ts, direction, entry_z, exit_z,
			reason, forced, units_a, units_b, gross_pnl, costs, net_pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if t.ExitTS.Before(t.EntryTS) {
			return fmt.Errorf("trade %s/%s exits before entry", t.PairA, t.PairB)
		}
		_, err = stmt.ExecContext(ctx,
			t.RunID, t.PairA, t.PairB, t.EntryTS, t.ExitTS, t.Direction, t.EntryZ, t.ExitZ,
			t.Reason, t.Forced, t.UnitsA, t.UnitsB, t.GrossPnL, t.Costs, t.NetPnL)
		if err != nil {
			return fmt.Errorf("failed to insert trade in batch: %w", err)
		}
	}

	return tx.Commit()
}

// InsertPnL adds a PnL series atomically
func (r *backtestRepo) InsertPnL(ctx context.Context, rows []persistence.PnLRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(rows)/500+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_pnl (run_id, pair_a, pair_b, ts, cumulative_pnl, state)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range rows {
		if _, err := stmt.ExecContext(ctx, p.RunID, p.PairA, p.PairB, p.Timestamp, p.CumulativePnL, p.State); err != nil {
			return fmt.Errorf("failed to insert pnl point: %w", err)
		}
	}

	return tx.Commit()
}

// ListTrades returns trades for a pair in a run, ordered by entry time
func (r *backtestRepo) ListTrades(ctx context.Context, runID, pairA, pairB string) ([]persistence.TradeRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var trades []persistence.TradeRow
	err := r.db.SelectContext(ctx, &trades, `
		SELECT id, run_id, pair_a, pair_b, entry_ts, exit_ts, direction, entry_z, exit_z,
			reason, forced, units_a, units_b, gross_pnl, costs, net_pnl
		FROM backtest_trades
		WHERE run_id = $1 AND pair_a = $2 AND pair_b = $3
		ORDER BY entry_ts ASC`, runID, pairA, pairB)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
