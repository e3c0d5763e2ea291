// Package config loads and validates the run configuration.
//
// The loaded Config is a plain value. Components never read it directly; the
// derivation helpers below build the parameter structs each component takes.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/infrastructure/db"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/scoring"
	"github.com/sawpanic/pairsarb/internal/selection"
	"github.com/sawpanic/pairsarb/internal/signal"
	"github.com/sawpanic/pairsarb/internal/stability"
	"github.com/sawpanic/pairsarb/internal/stationarity"
)

// DefaultPath is where the CLI looks for the configuration file
const DefaultPath = "config/params.yaml"

// Config is the resolved run configuration
type Config struct {
	Universe     UniverseConfig     `yaml:"universe" json:"universe"`
	Lookbacks    LookbacksConfig    `yaml:"lookbacks" json:"lookbacks"`
	Thresholds   ThresholdsConfig   `yaml:"thresholds" json:"thresholds"`
	Selection    SelectionConfig    `yaml:"selection" json:"selection"`
	Risk         RiskConfig         `yaml:"risk" json:"risk"`
	Scoring      ScoringConfig      `yaml:"scoring" json:"scoring"`
	Stationarity StationarityConfig `yaml:"stationarity" json:"stationarity"`
	Stability    StabilityConfig    `yaml:"stability" json:"stability"`
	Data         DataConfig         `yaml:"data" json:"data"`
	Output       OutputConfig       `yaml:"output" json:"output"`
	Database     db.Config          `yaml:"database" json:"database"`
	Cache        CacheConfig        `yaml:"cache" json:"cache"`
	HTTP         HTTPConfig         `yaml:"http" json:"http"`
}

type UniverseConfig struct {
	Tickers []string `yaml:"tickers" json:"tickers"`
}

type LookbacksConfig struct {
	CorrDays   *int `yaml:"corr_days" json:"corr_days"`
	CointDays  *int `yaml:"coint_days" json:"coint_days"`
	ZScoreDays *int `yaml:"zscore_days" json:"zscore_days"`
	// ZScoreHalfLifeMult > 0 widens the backtest window to ceil(mult * half-life)
	ZScoreHalfLifeMult float64 `yaml:"zscore_half_life_mult" json:"zscore_half_life_mult"`
}

type ThresholdsConfig struct {
	EntryZ       *float64 `yaml:"entry_z" json:"entry_z"`
	ExitZ        *float64 `yaml:"exit_z" json:"exit_z"`
	StopZ        *float64 `yaml:"stop_z" json:"stop_z"`
	TimeStopDays *int     `yaml:"time_stop_days" json:"time_stop_days"`
	ExitMode     string   `yaml:"exit_mode" json:"exit_mode"` // threshold | zero_cross
}

type SelectionConfig struct {
	MinCorr         *float64 `yaml:"min_corr" json:"min_corr"`
	MaxHalfLifeDays *float64 `yaml:"max_half_life_days" json:"max_half_life_days"`
	PValCoint       *float64 `yaml:"pval_coint" json:"pval_coint"`
	MaxPairs        *int     `yaml:"max_pairs" json:"max_pairs"`
	MinObs          *int     `yaml:"min_obs" json:"min_obs"` // minimum aligned window
}

type RiskConfig struct {
	Capital               *float64 `yaml:"capital" json:"capital"`
	PerTradePct           *float64 `yaml:"per_trade_pct" json:"per_trade_pct"`
	CostBps               *float64 `yaml:"cost_bps" json:"cost_bps"`
	CoolOffBars           int      `yaml:"cool_off_bars" json:"cool_off_bars"`
	MinBarsBetweenEntries int      `yaml:"min_bars_between_entries" json:"min_bars_between_entries"`
}

type WeightsConfig struct {
	Correlation *float64 `yaml:"correlation" json:"correlation"`
	PValue      *float64 `yaml:"pvalue" json:"pvalue"`
	HalfLife    *float64 `yaml:"half_life" json:"half_life"`
	Sigma       *float64 `yaml:"sigma" json:"sigma"`
}

type ScoringConfig struct {
	Weights     WeightsConfig `yaml:"weights" json:"weights"`
	PValueFloor *float64      `yaml:"pvalue_floor" json:"pvalue_floor"`
	Workers     int           `yaml:"workers" json:"workers"` // 0 = one per CPU
}

type ProxyConfig struct {
	Buckets []stationarity.Bucket `yaml:"buckets" json:"buckets"`
	Default *float64              `yaml:"default" json:"default"`
}

type StationarityConfig struct {
	Method           string      `yaml:"method" json:"method"`
	ADFMaxLag        int         `yaml:"adf_max_lag" json:"adf_max_lag"`
	ADFMinObs        int         `yaml:"adf_min_obs" json:"adf_min_obs"`
	MinHalfLifeObs   int         `yaml:"min_halflife_obs" json:"min_halflife_obs"`
	MinRegressionObs int         `yaml:"min_regression_obs" json:"min_regression_obs"`
	Proxy            ProxyConfig `yaml:"proxy" json:"proxy"`
}

// StabilityConfig enables sub-sample stability gates at selection.
type StabilityConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	HalfLifeTol   float64 `yaml:"half_life_tol" json:"half_life_tol"`
	HalfLifeMin   float64 `yaml:"half_life_min_days" json:"half_life_min_days"`
	BetaTol       float64 `yaml:"beta_tol" json:"beta_tol"`
	SplitMinObs   int     `yaml:"split_min_obs" json:"split_min_obs"`
	Subwindows    int     `yaml:"subwindows" json:"subwindows"`
	SubwindowDays int     `yaml:"subwindow_days" json:"subwindow_days"`
	MinPassRatio  float64 `yaml:"min_pass_ratio" json:"min_pass_ratio"`
}

type DataConfig struct {
	Dir         string `yaml:"dir" json:"dir"`
	PricePolicy string `yaml:"price_policy" json:"price_policy"`
}

type OutputConfig struct {
	Dir           string `yaml:"dir" json:"dir"`
	ProgressEvery int    `yaml:"progress_every" json:"progress_every"`
	// KeepRuns prunes older run directories after each scoring run; 0 keeps all.
	KeepRuns int `yaml:"keep_runs" json:"keep_runs"`
}

type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	RedisDB   int           `yaml:"redis_db" json:"redis_db"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	RateLimit    float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second
	Burst        int           `yaml:"burst" json:"burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Load reads, defaults and validates a configuration file. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies runtime defaults and PG_* overrides, and validates.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	db.ApplyEnvOverrides(&cfg.Database)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills runtime-only knobs. Statistical parameters have no defaults.
func (c *Config) applyDefaults() {
	if c.Stationarity.Method == "" {
		c.Stationarity.Method = string(stationarity.MethodADF)
	}
	if c.Stationarity.ADFMaxLag == 0 {
		c.Stationarity.ADFMaxLag = 1
	}
	if c.Stationarity.ADFMinObs == 0 {
		c.Stationarity.ADFMinObs = 20
	}
	if c.Stationarity.MinHalfLifeObs == 0 {
		c.Stationarity.MinHalfLifeObs = 20
	}
	if c.Stationarity.MinRegressionObs == 0 {
		c.Stationarity.MinRegressionObs = 5
	}
	if c.Stability.SplitMinObs == 0 {
		c.Stability.SplitMinObs = 80
	}
	if c.Stability.MinPassRatio == 0 {
		c.Stability.MinPassRatio = 2.0 / 3.0
	}
	if c.Data.PricePolicy == "" {
		c.Data.PricePolicy = string(market.PriceBest)
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data/prices"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
	if c.Output.ProgressEvery == 0 {
		c.Output.ProgressEvery = 25
	}
	c.Database = c.Database.WithDefaults()
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8090"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 10
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = 20
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
}

func cfgErr(field, reason string) error {
	return &domain.ConfigurationError{Field: field, Reason: reason}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate reports the first missing or out-of-range field as a *domain.ConfigurationError.
func (c Config) Validate() error {
	if len(c.Universe.Tickers) < 2 {
		return cfgErr("universe.tickers", "at least two tickers are required")
	}
	for i, t := range c.Universe.Tickers {
		if t == "" {
			return cfgErr(fmt.Sprintf("universe.tickers[%d]", i), "empty ticker")
		}
	}

	lb := c.Lookbacks
	for _, f := range []struct {
		name string
		v    *int
		min  int
	}{
		{"lookbacks.corr_days", lb.CorrDays, 4},
		{"lookbacks.coint_days", lb.CointDays, 3},
		{"lookbacks.zscore_days", lb.ZScoreDays, 2},
		{"selection.min_obs", c.Selection.MinObs, 2},
		{"thresholds.time_stop_days", c.Thresholds.TimeStopDays, 1},
		{"selection.max_pairs", c.Selection.MaxPairs, 1},
	} {
		if f.v == nil {
			return cfgErr(f.name, "required")
		}
		if *f.v < f.min {
			return cfgErr(f.name, fmt.Sprintf("must be >= %d", f.min))
		}
	}
	if !finite(lb.ZScoreHalfLifeMult) || lb.ZScoreHalfLifeMult < 0 {
		return cfgErr("lookbacks.zscore_half_life_mult", "must be a finite number >= 0")
	}

	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"thresholds.entry_z", c.Thresholds.EntryZ},
		{"thresholds.exit_z", c.Thresholds.ExitZ},
		{"thresholds.stop_z", c.Thresholds.StopZ},
		{"selection.min_corr", c.Selection.MinCorr},
		{"selection.max_half_life_days", c.Selection.MaxHalfLifeDays},
		{"selection.pval_coint", c.Selection.PValCoint},
		{"risk.capital", c.Risk.Capital},
		{"risk.per_trade_pct", c.Risk.PerTradePct},
		{"risk.cost_bps", c.Risk.CostBps},
		{"scoring.weights.correlation", c.Scoring.Weights.Correlation},
		{"scoring.weights.pvalue", c.Scoring.Weights.PValue},
		{"scoring.weights.half_life", c.Scoring.Weights.HalfLife},
		{"scoring.weights.sigma", c.Scoring.Weights.Sigma},
		{"scoring.pvalue_floor", c.Scoring.PValueFloor},
	} {
		if f.v == nil {
			return cfgErr(f.name, "required")
		}
		if !finite(*f.v) {
			return cfgErr(f.name, "must be finite")
		}
	}
	if c.Thresholds.ExitMode == "" {
		return cfgErr("thresholds.exit_mode", "required")
	}

	if err := c.BacktestParams().Validate(); err != nil {
		return cfgErr("backtest", err.Error())
	}

	sel := c.SelectionThresholds()
	if sel.MinCorrelation < -1 || sel.MinCorrelation > 1 {
		return cfgErr("selection.min_corr", "must be in [-1, 1]")
	}
	if !(sel.MaxHalfLife > 0) {
		return cfgErr("selection.max_half_life_days", "must be > 0")
	}
	if sel.MaxPValue < 0 || sel.MaxPValue > 1 {
		return cfgErr("selection.pval_coint", "must be in [0, 1]")
	}

	if err := c.Weights().Validate(); err != nil {
		return cfgErr("scoring", err.Error())
	}
	if c.Scoring.Workers < 0 {
		return cfgErr("scoring.workers", "must be >= 0")
	}

	st := c.Stationarity
	if !stationarity.Method(st.Method).Valid() {
		return cfgErr("stationarity.method", fmt.Sprintf("unknown method %q", st.Method))
	}
	if st.ADFMaxLag < 0 {
		return cfgErr("stationarity.adf_max_lag", "must be >= 0")
	}
	if st.MinRegressionObs < 3 {
		return cfgErr("stationarity.min_regression_obs", "must be > 2")
	}
	if st.MinHalfLifeObs < 2 {
		return cfgErr("stationarity.min_halflife_obs", "must be >= 2")
	}
	if st.Proxy.Default == nil {
		return cfgErr("stationarity.proxy.default", "required")
	}
	if err := c.ProxyTable().Validate(); err != nil {
		return cfgErr("stationarity.proxy", err.Error())
	}

	if err := c.Stability.validate(st.MinRegressionObs); err != nil {
		return err
	}

	if !market.PricePolicy(c.Data.PricePolicy).Valid() {
		return cfgErr("data.price_policy", fmt.Sprintf("unknown policy %q", c.Data.PricePolicy))
	}
	if c.Output.KeepRuns < 0 {
		return cfgErr("output.keep_runs", "must be >= 0")
	}
	if err := c.Database.Validate(); err != nil {
		return cfgErr("database", err.Error())
	}
	if c.Cache.Enabled && c.Cache.TTL < 0 {
		return cfgErr("cache.ttl", "must be >= 0")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.Burst < 0 {
		return cfgErr("http", "rate_limit and burst must be >= 0")
	}
	return nil
}

func (s StabilityConfig) validate(minRegressionObs int) error {
	if !s.Enabled {
		return nil
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"stability.half_life_tol", s.HalfLifeTol},
		{"stability.half_life_min_days", s.HalfLifeMin},
		{"stability.beta_tol", s.BetaTol},
	} {
		if !finite(f.v) || f.v < 0 {
			return cfgErr(f.name, "must be a finite number >= 0")
		}
	}
	if s.SplitMinObs < 2 {
		return cfgErr("stability.split_min_obs", "must be >= 2")
	}
	if s.Subwindows < 0 {
		return cfgErr("stability.subwindows", "must be >= 0")
	}
	if s.Subwindows > 0 && s.SubwindowDays < minRegressionObs {
		return cfgErr("stability.subwindow_days", fmt.Sprintf("must be >= stationarity.min_regression_obs (%d)", minRegressionObs))
	}
	if !(s.MinPassRatio > 0 && s.MinPassRatio <= 1) {
		return cfgErr("stability.min_pass_ratio", "must be in (0, 1]")
	}
	if s.HalfLifeTol == 0 && s.BetaTol == 0 && s.Subwindows == 0 {
		return cfgErr("stability", "enabled with no check configured")
	}
	return nil
}

// Weights returns the composite score weights
func (c Config) Weights() scoring.Weights {
	w := c.Scoring.Weights
	return scoring.Weights{
		Correlation: deref(w.Correlation),
		PValue:      deref(w.PValue),
		HalfLife:    deref(w.HalfLife),
		Sigma:       deref(w.Sigma),
		PValueFloor: deref(c.Scoring.PValueFloor),
	}
}

// ProxyTable returns the half-life to p-value fallback table
func (c Config) ProxyTable() stationarity.ProxyTable {
	return stationarity.ProxyTable{
		Buckets: append([]stationarity.Bucket(nil), c.Stationarity.Proxy.Buckets...),
		Default: deref(c.Stationarity.Proxy.Default),
	}
}

// Scorer builds the pair scorer
func (c Config) Scorer() scoring.Scorer {
	st := c.Stationarity
	tester := stationarity.Tester{
		Method: stationarity.Method(st.Method),
		MaxLag: st.ADFMaxLag,
		MinObs: st.ADFMinObs,
		Proxy:  c.ProxyTable(),
	}
	return scoring.Scorer{
		CorrelationLookback:   derefInt(c.Lookbacks.CorrDays),
		CointegrationLookback: derefInt(c.Lookbacks.CointDays),
		MinObservations:       derefInt(c.Selection.MinObs),
		MinRegressionObs:      st.MinRegressionObs,
		MinHalfLifeObs:        st.MinHalfLifeObs,
		Policy:                market.PricePolicy(c.Data.PricePolicy),
		Weights:               c.Weights(),
		Tester:                tester,
		Stability:             c.StabilityGates(tester),
	}
}

// StabilityGates returns the sub-sample stability gates. The rolling check
// reuses the selection p-value and half-life limits.
func (c Config) StabilityGates(tester stationarity.Tester) stability.Gates {
	s := c.Stability
	return stability.Gates{
		Enabled:          s.Enabled,
		HalfLifeTol:      s.HalfLifeTol,
		MinHalfLife:      s.HalfLifeMin,
		BetaTol:          s.BetaTol,
		SplitMinObs:      s.SplitMinObs,
		Subwindows:       s.Subwindows,
		SubwindowLen:     s.SubwindowDays,
		MinPassRatio:     s.MinPassRatio,
		MaxPValue:        deref(c.Selection.PValCoint),
		MaxHalfLife:      deref(c.Selection.MaxHalfLifeDays),
		MinRegressionObs: c.Stationarity.MinRegressionObs,
		MinHalfLifeObs:   c.Stationarity.MinHalfLifeObs,
		Tester:           tester,
	}
}

// SelectionThresholds returns the selection thresholds
func (c Config) SelectionThresholds() selection.Thresholds {
	return selection.Thresholds{
		MinCorrelation: deref(c.Selection.MinCorr),
		MaxHalfLife:    deref(c.Selection.MaxHalfLifeDays),
		MaxPValue:      deref(c.Selection.PValCoint),
		MaxPairs:       derefInt(c.Selection.MaxPairs),
	}
}

// BacktestParams returns the simulator parameters
func (c Config) BacktestParams() backtest.Params {
	return backtest.Params{
		EntryZ:                deref(c.Thresholds.EntryZ),
		ExitZ:                 deref(c.Thresholds.ExitZ),
		StopZ:                 deref(c.Thresholds.StopZ),
		TimeStopBars:          derefInt(c.Thresholds.TimeStopDays),
		ExitMode:              backtest.ExitMode(c.Thresholds.ExitMode),
		Capital:               deref(c.Risk.Capital),
		PerTradePct:           deref(c.Risk.PerTradePct),
		CostBps:               deref(c.Risk.CostBps),
		CoolOffBars:           c.Risk.CoolOffBars,
		MinBarsBetweenEntries: c.Risk.MinBarsBetweenEntries,
	}
}

// ZScoreWindow returns the backtest window for a pair with the given half-life
func (c Config) ZScoreWindow(halfLife float64) int {
	return signal.Window(derefInt(c.Lookbacks.ZScoreDays), c.Lookbacks.ZScoreHalfLifeMult, halfLife)
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
