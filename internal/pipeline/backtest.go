package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/infrastructure/async"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

type simulated struct {
	pair   domain.PairID
	result backtest.Result
	err    error
}

// Backtest simulates each pair independently. The z-score window of a pair
// follows its half-life when a multiplier is configured. Pairs that cannot be
// simulated for lack of data or a degenerate fit are reported in the failure
// map; any other pair error fails the stage. Results keep input order.
func (p *Pipeline) Backtest(ctx context.Context, series map[string]domain.PriceSeries, pairs []scoring.PairScore) ([]backtest.Result, map[domain.PairID]error, error) {
	params := p.cfg.BacktestParams()
	if err := params.Validate(); err != nil {
		return nil, nil, &domain.ConfigurationError{Field: "thresholds", Reason: err.Error()}
	}

	timer := p.opts.Metrics.StartStepTimer("backtest")
	pool := async.NewWorkerPool[scoring.PairScore, simulated](p.cfg.Scoring.Workers, func(_ context.Context, row scoring.PairScore) simulated {
		res, err := p.simulate(series, row, params)
		return simulated{pair: row.Pair, result: res, err: err}
	})

	outcomes, runErr := pool.Run(ctx, pairs)

	results := make([]backtest.Result, 0, len(pairs))
	failures := make(map[domain.PairID]error)
	var fatal error
	for _, o := range outcomes {
		if !o.Done {
			continue
		}
		if err := o.Value.err; err != nil {
			failures[o.Value.pair] = err
			if !domain.IsRecoverable(err) {
				if fatal == nil {
					fatal = fmt.Errorf("backtest %s: %w", o.Value.pair, err)
				}
				continue
			}
			log.Warn().Err(err).Str("pair", o.Value.pair.String()).Str("reason", domain.ReasonCode(err)).Msg("Backtest skipped")
			continue
		}
		p.opts.Metrics.RecordTrades(o.Value.result.Trades)
		s := o.Value.result.Summary
		if s.FlatWindows > 0 {
			p.opts.Metrics.RecordSignalExclusions(s.SignalReason, s.FlatWindows)
			log.Info().
				Str("pair", o.Value.pair.String()).
				Int("flat_windows", s.FlatWindows).
				Str("reason", s.SignalReason).
				Msg("Z-scores excluded on flat windows")
		}
		log.Debug().
			Str("pair", o.Value.pair.String()).
			Int("trades", s.Trades).
			Float64("net_pnl", s.NetPnL).
			Float64("max_drawdown", s.MaxDrawdown).
			Bool("forced", s.Forced).
			Msg("Backtest completed")
		results = append(results, o.Value.result)
	}

	if runErr != nil {
		timer.Stop("cancelled")
		return results, failures, fmt.Errorf("backtest interrupted: %w", runErr)
	}
	if fatal != nil {
		timer.Stop("failed")
		return results, failures, fatal
	}
	timer.Stop("ok")
	return results, failures, nil
}

func (p *Pipeline) simulate(series map[string]domain.PriceSeries, row scoring.PairScore, params backtest.Params) (backtest.Result, error) {
	ap, err := p.align(series, row.Pair)
	if err != nil {
		return backtest.Result{}, err
	}
	window := p.cfg.ZScoreWindow(row.HalfLife)
	in, err := backtest.Prepare(ap, p.cfg.Stationarity.MinRegressionObs, window)
	if err != nil {
		return backtest.Result{}, err
	}
	return backtest.Run(in, params)
}
