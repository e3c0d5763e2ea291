// Package export copies a completed run into the analytics database.
package export

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/breakers"
	"github.com/sawpanic/pairsarb/internal/persistence"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

// Run is everything a run produced
type Run struct {
	RunID     string
	StartedAt time.Time
	AsOf      time.Time
	Universe  []string
	Params    []byte // resolved configuration as JSON
	Scored    []scoring.PairScore
	Selected  []scoring.PairScore
	Backtests []backtest.Result
}

// Exporter writes runs through a circuit breaker
type Exporter struct {
	repo    persistence.Repository
	breaker *breakers.Breaker
}

// New creates an exporter
func New(repo persistence.Repository, breaker *breakers.Breaker) *Exporter {
	if breaker == nil {
		breaker = breakers.New("db_export", breakers.DefaultSettings())
	}
	return &Exporter{repo: repo, breaker: breaker}
}

// Export writes the run header, score table, selection, trades and PnL.
// The run row goes first so foreign keys hold.
func (e *Exporter) Export(ctx context.Context, run Run) error {
	return e.breaker.Do(ctx, func(ctx context.Context) error {
		failed := 0
		for _, row := range run.Scored {
			if !row.OK() {
				failed++
			}
		}

		err := e.repo.Runs.Insert(ctx, persistence.RunRecord{
			RunID:     run.RunID,
			StartedAt: run.StartedAt,
			AsOf:      run.AsOf,
			Universe:  run.Universe,
			Params:    run.Params,
			Pairs:     len(run.Scored),
			Selected:  len(run.Selected),
			Failed:    failed,
		})
		if err != nil {
			return fmt.Errorf("export run: %w", err)
		}

		if err := e.repo.Scores.InsertScores(ctx, ScoreRows(run.RunID, run.Scored)); err != nil {
			return fmt.Errorf("export scores: %w", err)
		}
		if err := e.repo.Scores.InsertSelections(ctx, SelectionRows(run.RunID, run.Selected)); err != nil {
			return fmt.Errorf("export selections: %w", err)
		}

		for _, res := range run.Backtests {
			if err := e.repo.Backtest.InsertTrades(ctx, TradeRows(run.RunID, res.Trades)); err != nil {
				return fmt.Errorf("export trades %s: %w", res.Pair, err)
			}
			if err := e.repo.Backtest.InsertPnL(ctx, PnLRows(run.RunID, res)); err != nil {
				return fmt.Errorf("export pnl %s: %w", res.Pair, err)
			}
		}
		return nil
	})
}

// ScoreRows converts the audit table; undefined statistics become NULL
func ScoreRows(runID string, rows []scoring.PairScore) []persistence.ScoreRow {
	out := make([]persistence.ScoreRow, 0, len(rows))
	for _, r := range rows {
		row := persistence.ScoreRow{
			RunID:    runID,
			PairA:    r.Pair.A,
			PairB:    r.Pair.B,
			Method:   string(r.Method),
			HalfLife: nullable(r.HalfLife),
			Score:    nullable(r.Score),
		}
		if r.OK() {
			row.Correlation = nullable(r.Correlation)
			row.PValue = nullable(r.PValue)
			row.SpreadSigma = nullable(r.SpreadSigma)
			row.Beta = nullable(r.Beta)
		} else {
			reason := r.Reason
			row.Reason = &reason
		}
		out = append(out, row)
	}
	return out
}

// SelectionRows numbers the selection from rank 1
func SelectionRows(runID string, rows []scoring.PairScore) []persistence.SelectionRow {
	out := make([]persistence.SelectionRow, 0, len(rows))
	for i, r := range rows {
		out = append(out, persistence.SelectionRow{RunID: runID, Rank: i + 1, PairA: r.Pair.A, PairB: r.Pair.B, Score: r.Score})
	}
	return out
}

// TradeRows converts a journal; money is rounded to 6 places, units to 4
func TradeRows(runID string, trades []backtest.TradeRecord) []persistence.TradeRow {
	out := make([]persistence.TradeRow, 0, len(trades))
	for _, t := range trades {
		out = append(out, persistence.TradeRow{
			RunID:     runID,
			PairA:     t.Pair.A,
			PairB:     t.Pair.B,
			EntryTS:   t.EntryTime,
			ExitTS:    t.ExitTime,
			Direction: string(t.Direction),
			EntryZ:    t.EntryZ,
			ExitZ:     t.ExitZ,
			Reason:    string(t.Reason),
			Forced:    t.Forced,
			UnitsA:    decimal.NewFromFloat(t.UnitsA).Round(4),
			UnitsB:    decimal.NewFromFloat(t.UnitsB).Round(4),
			GrossPnL:  money(t.GrossPnL),
			Costs:     money(t.Costs),
			NetPnL:    money(t.NetPnL),
		})
	}
	return out
}

// PnLRows converts a PnL series
func PnLRows(runID string, res backtest.Result) []persistence.PnLRow {
	out := make([]persistence.PnLRow, 0, len(res.PnL))
	for _, p := range res.PnL {
		out = append(out, persistence.PnLRow{
			RunID:         runID,
			PairA:         res.Pair.A,
			PairB:         res.Pair.B,
			Timestamp:     p.Timestamp,
			CumulativePnL: money(p.Cumulative),
			State:         string(p.State),
		})
	}
	return out
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
