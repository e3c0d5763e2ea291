// Package pipeline runs a full scoring/selection/backtest pass over a universe
// and writes its artifacts.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pairsarb/internal/artifacts"
	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/cache"
	"github.com/sawpanic/pairsarb/internal/config"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/export"
	plog "github.com/sawpanic/pairsarb/internal/log"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/metrics"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

// Source materializes price series for a universe. *data.Loader implements it.
type Source interface {
	LoadUniverse(ctx context.Context, tickers []string) (map[string]domain.PriceSeries, map[string]error, error)
}

// Exporter receives completed runs. *export.Exporter implements it.
type Exporter interface {
	Export(ctx context.Context, run export.Run) error
}

// Options are the optional collaborators of a pipeline. Zero values disable them.
type Options struct {
	Metrics  *metrics.Registry
	Cache    *cache.Scores
	Exporter Exporter
	Now      func() time.Time
	NewRunID func() string
}

// Pipeline is bound to one resolved configuration
type Pipeline struct {
	cfg    config.Config
	source Source
	opts   Options
}

// New creates a pipeline. The configuration must already be validated.
func New(cfg config.Config, source Source, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Pipeline{cfg: cfg, source: source, opts: opts}
}

// Plan selects the stages of one run
type Plan struct {
	Score    bool
	Backtest bool
	// Pairs are backtested when Score is false.
	Pairs []scoring.PairScore
}

// Result is everything one run produced
type Result struct {
	RunID      string
	Dir        string
	StartedAt  time.Time
	AsOf       time.Time
	Universe   []string
	LoadErrors map[string]error
	Report     ScoreReport
	Backtests  []backtest.Result
	Failures   map[domain.PairID]error
	Portfolio  backtest.Portfolio
	// ExportErr is set when the database export failed; artifacts are unaffected.
	ExportErr error
}

// Execute loads the universe, runs the planned stages, writes artifacts and
// exports the run when an exporter is configured. Per-pair failures never
// abort the run.
func (p *Pipeline) Execute(ctx context.Context, plan Plan) (Result, error) {
	res := Result{
		RunID:     p.opts.NewRunID(),
		StartedAt: p.opts.Now().UTC(),
	}
	steps := plog.NewStepLogger("pairsarb")
	writer := artifacts.NewWriter(p.cfg.Output.Dir, res.RunID, res.StartedAt)
	res.Dir = writer.Dir()

	log.Info().Str("run_id", res.RunID).Str("dir", res.Dir).Bool("score", plan.Score).Bool("backtest", plan.Backtest).Msg("Run started")

	steps.StartStep("load")
	timer := p.opts.Metrics.StartStepTimer("load")
	series, loadErrs, err := p.source.LoadUniverse(ctx, p.cfg.Universe.Tickers)
	if err != nil {
		timer.Stop("error")
		steps.Fail(err)
		return res, fmt.Errorf("load universe: %w", err)
	}
	timer.Stop("ok")
	for sym, lerr := range loadErrs {
		log.Warn().Err(lerr).Str("symbol", sym).Msg("Failed to load series")
	}
	res.LoadErrors = loadErrs
	res.Universe = universeOf(p.cfg.Universe.Tickers, series)
	res.AsOf = asOf(series)
	if len(res.Universe) < 2 {
		err := &domain.InsufficientDataError{Stage: "load", Have: len(res.Universe), Need: 2}
		steps.Fail(err)
		return res, err
	}

	pairs := plan.Pairs
	if plan.Score {
		steps.StartStep("score")
		report, err := p.Score(ctx, series)
		res.Report = report
		if err != nil {
			steps.Fail(err)
			return res, err
		}
		if err := writer.WriteScored(report.Scored); err != nil {
			return res, err
		}
		if err := writer.WriteSelected(report.Selected); err != nil {
			return res, err
		}
		pairs = report.Selected
	}

	if plan.Backtest {
		steps.StartStep("backtest")
		results, failures, err := p.Backtest(ctx, series, pairs)
		res.Backtests, res.Failures = results, failures
		if err != nil {
			steps.Fail(err)
			return res, err
		}
		res.Portfolio = backtest.Aggregate(results)
		if err := p.writeBacktests(writer, res); err != nil {
			return res, err
		}
	}

	steps.StartStep("artifacts")
	if err := writer.WriteRunParams(p.runParams(res, plan)); err != nil {
		return res, err
	}
	if plan.Score {
		if err := writer.MarkLatest(p.opts.Now().UTC()); err != nil {
			return res, err
		}
		if p.cfg.Output.KeepRuns > 0 {
			p.prune()
		}
	}

	if p.opts.Exporter != nil {
		steps.StartStep("export")
		res.ExportErr = p.export(ctx, res)
	}
	steps.Finish()

	log.Info().
		Str("run_id", res.RunID).
		Int("scored", len(res.Report.Scored)).
		Int("selected", len(res.Report.Selected)).
		Int("backtests", len(res.Backtests)).
		Float64("net_pnl", res.Portfolio.NetPnL).
		Msg("Run completed")
	return res, nil
}

func (p *Pipeline) writeBacktests(w *artifacts.Writer, res Result) error {
	for _, r := range res.Backtests {
		if err := w.WriteJournal(r.Pair, r.Trades); err != nil {
			return err
		}
		if err := w.WritePnL(r.Pair, r.PnL); err != nil {
			return err
		}
	}

	type pairSummary struct {
		Pair    domain.PairID    `json:"pair"`
		Alpha   float64          `json:"alpha"`
		Beta    float64          `json:"beta"`
		Window  int              `json:"zscore_window"`
		Summary backtest.Summary `json:"summary"`
	}
	failed := make(map[string]string, len(res.Failures))
	for pair, err := range res.Failures {
		failed[pair.String()] = err.Error()
	}
	summary := struct {
		RunID     string             `json:"run_id"`
		Pairs     []pairSummary      `json:"pairs"`
		Failed    map[string]string  `json:"failed,omitempty"`
		Portfolio backtest.Portfolio `json:"portfolio"`
	}{RunID: res.RunID, Pairs: []pairSummary{}, Failed: failed, Portfolio: res.Portfolio}
	for _, r := range res.Backtests {
		summary.Pairs = append(summary.Pairs, pairSummary{Pair: r.Pair, Alpha: r.Alpha, Beta: r.Beta, Window: r.Window, Summary: r.Summary})
	}
	return w.WriteSummary(summary)
}

type runParams struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	AsOf        time.Time     `json:"as_of"`
	Universe    []string      `json:"universe"`
	Missing     []string      `json:"missing,omitempty"`
	Stages      []string      `json:"stages"`
	Config      config.Config `json:"config"`
	ScoredPairs int           `json:"scored_pairs"`
	Selected    int           `json:"selected_pairs"`
}

func (p *Pipeline) runParams(res Result, plan Plan) runParams {
	rp := runParams{
		RunID:       res.RunID,
		StartedAt:   res.StartedAt,
		AsOf:        res.AsOf,
		Universe:    res.Universe,
		Config:      p.cfg,
		ScoredPairs: len(res.Report.Scored),
		Selected:    len(res.Report.Selected),
	}
	for sym := range res.LoadErrors {
		rp.Missing = append(rp.Missing, sym)
	}
	sort.Strings(rp.Missing)
	if plan.Score {
		rp.Stages = append(rp.Stages, "score", "select")
	}
	if plan.Backtest {
		rp.Stages = append(rp.Stages, "backtest")
	}
	return rp
}

func (p *Pipeline) export(ctx context.Context, res Result) error {
	params, err := json.Marshal(p.runParams(res, Plan{}))
	if err != nil {
		return err
	}
	err = p.opts.Exporter.Export(ctx, export.Run{
		RunID:     res.RunID,
		StartedAt: res.StartedAt,
		AsOf:      res.AsOf,
		Universe:  res.Universe,
		Params:    params,
		Scored:    res.Report.Scored,
		Selected:  res.Report.Selected,
		Backtests: res.Backtests,
	})
	if err != nil {
		p.opts.Metrics.RecordExportError()
		log.Error().Err(err).Str("run_id", res.RunID).Msg("Database export failed")
		return err
	}
	log.Info().Str("run_id", res.RunID).Msg("Run exported")
	return nil
}

// prune applies output retention; failures are logged and never fail the run
func (p *Pipeline) prune() {
	plan, err := artifacts.PlanRetention(p.cfg.Output.Dir, p.cfg.Output.KeepRuns)
	if err == nil {
		err = artifacts.ApplyRetention(p.cfg.Output.Dir, plan)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Artifact retention failed")
		return
	}
	if len(plan.ToDelete) > 0 {
		log.Info().Int("removed", len(plan.ToDelete)).Int("kept", len(plan.ToKeep)).Msg("Pruned old runs")
	}
}

// universeOf keeps configured order, dropping tickers that did not load
func universeOf(tickers []string, series map[string]domain.PriceSeries) []string {
	out := make([]string, 0, len(series))
	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		if _, ok := series[t]; ok && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func asOf(series map[string]domain.PriceSeries) time.Time {
	var last time.Time
	for _, s := range series {
		if n := len(s.Bars); n > 0 && s.Bars[n-1].Timestamp.After(last) {
			last = s.Bars[n-1].Timestamp
		}
	}
	return last
}

// align builds the full-history aligned pair for a backtest
func (p *Pipeline) align(series map[string]domain.PriceSeries, pair domain.PairID) (domain.AlignedPair, error) {
	minObs := 0
	if p.cfg.Selection.MinObs != nil {
		minObs = *p.cfg.Selection.MinObs
	}
	x, ok := series[pair.A]
	if !ok {
		return domain.AlignedPair{}, &domain.InsufficientDataError{Stage: "series " + pair.A, Need: minObs}
	}
	y, ok := series[pair.B]
	if !ok {
		return domain.AlignedPair{}, &domain.InsufficientDataError{Stage: "series " + pair.B, Need: minObs}
	}
	return market.Align(x, y, market.PricePolicy(p.cfg.Data.PricePolicy), minObs)
}
