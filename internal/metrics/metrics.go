// Package metrics exposes Prometheus instruments for scoring and backtest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/scoring"
)

// Registry holds all pairsarb metrics. A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	StepDuration     *prometheus.HistogramVec
	PairsScored      *prometheus.CounterVec
	PairFailures     *prometheus.CounterVec
	StationarityPath *prometheus.CounterVec
	ScoreLatency     prometheus.Histogram
	SelectedPairs    prometheus.Gauge
	Trades           *prometheus.CounterVec
	SignalExclusions *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	ExportErrors     prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
}

// New creates a registry with Go runtime collectors and all pairsarb metrics
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairsarb_step_duration_seconds",
				Help:    "Duration of each pipeline step in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"step", "result"},
		),

		PairsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_pairs_scored_total",
				Help: "Pairs scored by outcome (ok, failed)",
			},
			[]string{"outcome"},
		),

		PairFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_pair_failures_total",
				Help: "Pairs that could not be scored, by reason code",
			},
			[]string{"reason"},
		),

		StationarityPath: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_stationarity_path_total",
				Help: "Stationarity p-values by method (adf, halflife_proxy)",
			},
			[]string{"method"},
		),

		ScoreLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pairsarb_score_latency_seconds",
				Help:    "Wall time to score one pair",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),

		SelectedPairs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pairsarb_selected_pairs",
				Help: "Pairs selected by the latest run",
			},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_backtest_trades_total",
				Help: "Closed backtest trades by exit reason",
			},
			[]string{"reason"},
		),

		SignalExclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_backtest_signal_exclusions_total",
				Help: "Backtest bars without a z-score, by reason code",
			},
			[]string{"reason"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_cache_lookups_total",
				Help: "Score cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),

		ExportErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pairsarb_export_errors_total",
				Help: "Failed database exports",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairsarb_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.StepDuration,
		r.PairsScored,
		r.PairFailures,
		r.StationarityPath,
		r.ScoreLatency,
		r.SelectedPairs,
		r.Trades,
		r.SignalExclusions,
		r.CacheLookups,
		r.ExportErrors,
		r.HTTPRequests,
	)
	return r
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// StepTimer times a pipeline step
type StepTimer struct {
	r     *Registry
	step  string
	start time.Time
}

// StartStepTimer starts timing a step
func (r *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{r: r, step: step, start: time.Now()}
}

// Stop records the step duration with a result label
func (st *StepTimer) Stop(result string) {
	if st.r == nil {
		return
	}
	st.r.StepDuration.WithLabelValues(st.step, result).Observe(time.Since(st.start).Seconds())
}

// RecordScore counts one scored row
func (r *Registry) RecordScore(row scoring.PairScore, latency time.Duration) {
	if r == nil {
		return
	}
	r.ScoreLatency.Observe(latency.Seconds())
	if !row.OK() {
		r.PairsScored.WithLabelValues("failed").Inc()
		r.PairFailures.WithLabelValues(row.Reason).Inc()
		return
	}
	r.PairsScored.WithLabelValues("ok").Inc()
	r.StationarityPath.WithLabelValues(string(row.Method)).Inc()
}

// RecordSelection sets the selected pair gauge
func (r *Registry) RecordSelection(n int) {
	if r == nil {
		return
	}
	r.SelectedPairs.Set(float64(n))
}

// RecordTrades counts closed trades by reason
func (r *Registry) RecordTrades(trades []backtest.TradeRecord) {
	if r == nil {
		return
	}
	for _, t := range trades {
		r.Trades.WithLabelValues(string(t.Reason)).Inc()
	}
}

// RecordSignalExclusions counts bars a backtest ran without a z-score
func (r *Registry) RecordSignalExclusions(reason string, bars int) {
	if r == nil || bars <= 0 {
		return
	}
	r.SignalExclusions.WithLabelValues(reason).Add(float64(bars))
}

// RecordCache counts a cache lookup
func (r *Registry) RecordCache(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordExportError counts a failed export
func (r *Registry) RecordExportError() {
	if r == nil {
		return
	}
	r.ExportErrors.Inc()
}
