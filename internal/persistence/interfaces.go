package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RunRecord describes one scoring/backtest run
type RunRecord struct {
	RunID     string    `json:"run_id" db:"run_id"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	AsOf      time.Time `json:"as_of" db:"as_of"`
	Universe  []string  `json:"universe" db:"universe"`
	Params    []byte    `json:"params" db:"params"` // resolved configuration as JSON
	Pairs     int       `json:"pairs" db:"pairs"`
	Selected  int       `json:"selected" db:"selected"`
	Failed    int       `json:"failed" db:"failed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScoreRow is one row of the scored-pairs audit table.
// Nullable columns hold undefined statistics (failed pair, undefined half-life).
type ScoreRow struct {
	RunID       string   `json:"run_id" db:"run_id"`
	PairA       string   `json:"pair_a" db:"pair_a"`
	PairB       string   `json:"pair_b" db:"pair_b"`
	Correlation *float64 `json:"correlation" db:"correlation"`
	PValue      *float64 `json:"pvalue" db:"pvalue"`
	Method      string   `json:"method" db:"method"`
	HalfLife    *float64 `json:"half_life" db:"half_life"`
	SpreadSigma *float64 `json:"spread_sigma" db:"spread_sigma"`
	Beta        *float64 `json:"beta" db:"beta"`
	Score       *float64 `json:"score" db:"score"`
	Reason      *string  `json:"reason,omitempty" db:"reason"`
}

// SelectionRow is one selected pair with its rank (1-based)
type SelectionRow struct {
	RunID string  `json:"run_id" db:"run_id"`
	Rank  int     `json:"rank" db:"rank"`
	PairA string  `json:"pair_a" db:"pair_a"`
	PairB string  `json:"pair_b" db:"pair_b"`
	Score float64 `json:"score" db:"score"`
}

// TradeRow is one closed backtest trade. Money columns are NUMERIC.
type TradeRow struct {
	ID        int64           `json:"id" db:"id"`
	RunID     string          `json:"run_id" db:"run_id"`
	PairA     string          `json:"pair_a" db:"pair_a"`
	PairB     string          `json:"pair_b" db:"pair_b"`
	EntryTS   time.Time       `json:"entry_ts" db:"entry_ts"`
	ExitTS    time.Time       `json:"exit_ts" db:"exit_ts"`
	Direction string          `json:"direction" db:"direction"`
	EntryZ    float64         `json:"entry_z" db:"entry_z"`
	ExitZ     *float64        `json:"exit_z" db:"exit_z"`
	Reason    string          `json:"reason" db:"reason"`
	Forced    bool            `json:"forced" db:"forced"`
	UnitsA    decimal.Decimal `json:"units_a" db:"units_a"`
	UnitsB    decimal.Decimal `json:"units_b" db:"units_b"`
	GrossPnL  decimal.Decimal `json:"gross_pnl" db:"gross_pnl"`
	Costs     decimal.Decimal `json:"costs" db:"costs"`
	NetPnL    decimal.Decimal `json:"net_pnl" db:"net_pnl"`
}

// PnLRow is one bar of the cumulative PnL series
type PnLRow struct {
	RunID         string          `json:"run_id" db:"run_id"`
	PairA         string          `json:"pair_a" db:"pair_a"`
	PairB         string          `json:"pair_b" db:"pair_b"`
	Timestamp     time.Time       `json:"ts" db:"ts"`
	CumulativePnL decimal.Decimal `json:"cumulative_pnl" db:"cumulative_pnl"`
	State         string          `json:"state" db:"state"`
}

// RunsRepo persists run metadata
type RunsRepo interface {
	// Insert records a run; duplicate run IDs are rejected
	Insert(ctx context.Context, run RunRecord) error

	// Get returns a run by ID, or nil when absent
	Get(ctx context.Context, runID string) (*RunRecord, error)

	// Latest returns the most recent runs, newest first
	Latest(ctx context.Context, limit int) ([]RunRecord, error)
}

// ScoresRepo persists scored and selected pairs
type ScoresRepo interface {
	// InsertScores adds the full audit table of a run atomically
	InsertScores(ctx context.Context, rows []ScoreRow) error

	// InsertSelections adds the ranked selection of a run atomically
	InsertSelections(ctx context.Context, rows []SelectionRow) error

	// ListSelections returns the selection of a run in rank order
	ListSelections(ctx context.Context, runID string) ([]SelectionRow, error)
}

// BacktestRepo persists trade journals and PnL series
type BacktestRepo interface {
	// InsertTrades adds closed trades atomically
	InsertTrades(ctx context.Context, rows []TradeRow) error

	// InsertPnL adds a PnL series atomically
	InsertPnL(ctx context.Context, rows []PnLRow) error

	// ListTrades returns trades for a pair in a run, by entry time
	ListTrades(ctx context.Context, runID, pairA, pairB string) ([]TradeRow, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs     RunsRepo
	Scores   ScoresRepo
	Backtest BacktestRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to database
	Ping(ctx context.Context) error
}
