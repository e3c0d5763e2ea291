package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pairsarb/internal/cache"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/infrastructure/async"
	plog "github.com/sawpanic/pairsarb/internal/log"
	"github.com/sawpanic/pairsarb/internal/scoring"
	"github.com/sawpanic/pairsarb/internal/selection"
)

// ScoreReport is the outcome of scoring and selecting a universe
type ScoreReport struct {
	// Scored holds one row per pair in enumeration order, failures included.
	Scored     []scoring.PairScore
	Selected   []scoring.PairScore
	Rejections map[selection.Rejection]int
	CacheHits  int
	// Complete is false when the run was cancelled before every pair was scored.
	Complete bool
}

type scored struct {
	row     scoring.PairScore
	cached  bool
	latency time.Duration
}

// Score scores every unordered pair of the loaded universe on a worker pool,
// then filters and ranks. Rows arrive from workers as complete values and are
// placed by index, so the table does not depend on scheduling. On cancellation
// the pairs already scored are kept and selected, and ctx.Err() is returned.
func (p *Pipeline) Score(ctx context.Context, series map[string]domain.PriceSeries) (ScoreReport, error) {
	pairs := scoring.Pairs(universeOf(p.cfg.Universe.Tickers, series))
	scorer := p.cfg.Scorer()
	thresholds := p.cfg.SelectionThresholds()

	timer := p.opts.Metrics.StartStepTimer("score")
	progress := plog.NewProgressIndicator("score", len(pairs), p.cfg.Output.ProgressEvery)

	pool := async.NewWorkerPool[domain.PairID, scored](p.cfg.Scoring.Workers, func(ctx context.Context, pair domain.PairID) scored {
		return p.scorePair(ctx, scorer, series[pair.A], series[pair.B])
	})

	report := ScoreReport{Scored: make([]scoring.PairScore, 0, len(pairs))}
	pool.OnResult = func(_ int, s scored) {
		p.opts.Metrics.RecordScore(s.row, s.latency)
		if p.opts.Cache.Enabled() {
			p.opts.Metrics.RecordCache(s.cached)
		}
		if s.cached {
			report.CacheHits++
		}
		if !s.row.OK() {
			log.Debug().Str("pair", s.row.Pair.String()).Str("reason", s.row.Reason).Str("error", s.row.Error).Msg("Pair failed")
		}
		progress.Increment(s.row.OK())
	}

	outcomes, runErr := pool.Run(ctx, pairs)
	for _, o := range outcomes {
		if o.Done {
			report.Scored = append(report.Scored, o.Value.row)
		}
	}
	report.Complete = len(report.Scored) == len(pairs)

	if runErr != nil {
		timer.Stop("cancelled")
		progress.Fail(runErr.Error())
	} else {
		timer.Stop("ok")
		progress.Finish()
	}

	selTimer := p.opts.Metrics.StartStepTimer("select")
	report.Selected = selection.Select(report.Scored, thresholds)
	report.Rejections = selection.Rejections(report.Scored, thresholds)
	selTimer.Stop("ok")
	p.opts.Metrics.RecordSelection(len(report.Selected))

	ev := log.Info().
		Int("pairs", len(pairs)).
		Int("scored", len(report.Scored)).
		Int("selected", len(report.Selected)).
		Int("cache_hits", report.CacheHits)
	for reason, n := range report.Rejections {
		ev = ev.Int("rejected_"+string(reason), n)
	}
	ev.Msg("Scoring completed")

	if runErr != nil {
		return report, fmt.Errorf("scoring interrupted after %d of %d pairs: %w", len(report.Scored), len(pairs), runErr)
	}
	return report, nil
}

func (p *Pipeline) scorePair(ctx context.Context, scorer scoring.Scorer, x, y domain.PriceSeries) scored {
	start := time.Now()
	var key string
	if p.opts.Cache.Enabled() {
		key = cache.Key(scorer, x, y)
		if row, ok := p.opts.Cache.Get(ctx, key); ok {
			return scored{row: row, cached: true, latency: time.Since(start)}
		}
	}

	row := scorer.Score(x, y)
	if key != "" {
		p.opts.Cache.Put(ctx, key, row)
	}
	return scored{row: row, latency: time.Since(start)}
}
