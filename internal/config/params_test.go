package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/backtest"
	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/stationarity"
)

const validYAML = `
universe:
  tickers: [SPY, IVV, VOO]
lookbacks:
  corr_days: 60
  coint_days: 120
  zscore_days: 20
thresholds:
  entry_z: 2
  exit_z: 0.5
  stop_z: 4
  time_stop_days: 20
  exit_mode: zero_cross
selection:
  min_corr: 0.8
  max_half_life_days: 30
  pval_coint: 0.1
  max_pairs: 3
  min_obs: 60
risk:
  capital: 100000
  per_trade_pct: 0.1
  cost_bps: 2
scoring:
  weights: {correlation: 1, pvalue: 0.5, half_life: 10, sigma: 0.25}
  pvalue_floor: 0.000001
stationarity:
  proxy:
    buckets:
      - {max_half_life: 10, pvalue: 0.05}
      - {max_half_life: 30, pvalue: 0.2}
    default: 0.6
`

func clearPG(t *testing.T) {
	for _, k := range []string{"PG_DSN", "PG_ENABLED", "PG_MIGRATE", "PG_MAX_OPEN_CONNS", "PG_MAX_IDLE_CONNS", "PG_QUERY_TIMEOUT"} {
		t.Setenv(k, "")
	}
}

func TestParse_Valid(t *testing.T) {
	clearPG(t)
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	// runtime defaults
	assert.Equal(t, "adf", cfg.Stationarity.Method)
	assert.Equal(t, 1, cfg.Stationarity.ADFMaxLag)
	assert.Equal(t, 20, cfg.Stationarity.ADFMinObs)
	assert.Equal(t, 5, cfg.Stationarity.MinRegressionObs)
	assert.Equal(t, "best", cfg.Data.PricePolicy)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)

	s := cfg.Scorer()
	assert.Equal(t, 60, s.CorrelationLookback)
	assert.Equal(t, 120, s.CointegrationLookback)
	assert.Equal(t, 60, s.MinObservations)
	assert.Equal(t, market.PriceBest, s.Policy)
	assert.Equal(t, stationarity.MethodADF, s.Tester.Method)
	assert.Equal(t, 0.6, s.Tester.Proxy.Default)
	assert.Len(t, s.Tester.Proxy.Buckets, 2)
	assert.Equal(t, 10.0, s.Weights.HalfLife)

	th := cfg.SelectionThresholds()
	assert.Equal(t, 0.8, th.MinCorrelation)
	assert.Equal(t, 30.0, th.MaxHalfLife)
	assert.Equal(t, 0.1, th.MaxPValue)
	assert.Equal(t, 3, th.MaxPairs)

	p := cfg.BacktestParams()
	assert.Equal(t, backtest.ExitZeroCross, p.ExitMode)
	assert.Equal(t, 20, p.TimeStopBars)
	assert.Equal(t, 2.0, p.CostBps)
	assert.NoError(t, p.Validate())

	assert.Equal(t, 20, cfg.ZScoreWindow(4))
}

func TestZScoreWindow_HalfLifeMultiplier(t *testing.T) {
	clearPG(t)
	cfg, err := Parse([]byte(strings.Replace(validYAML, "zscore_days: 20", "zscore_days: 20\n  zscore_half_life_mult: 3", 1)))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.ZScoreWindow(5))
	assert.Equal(t, 31, cfg.ZScoreWindow(10.2))
}

func TestParse_MissingRequiredField(t *testing.T) {
	clearPG(t)
	tests := []struct {
		name  string
		drop  string
		field string
	}{
		{"weights have no default", "weights: {correlation: 1, pvalue: 0.5, half_life: 10, sigma: 0.25}", "scoring.weights.correlation"},
		{"exit mode", "exit_mode: zero_cross", "thresholds.exit_mode"},
		{"proxy default", "default: 0.6", "stationarity.proxy.default"},
		{"max pairs", "max_pairs: 3", "selection.max_pairs"},
		{"entry z", "entry_z: 2", "thresholds.entry_z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(strings.Replace(validYAML, tt.drop, "", 1)))
			require.Error(t, err)

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.False(t, domain.IsRecoverable(err))
		})
	}
}

func TestParse_OutOfRange(t *testing.T) {
	clearPG(t)
	tests := []struct {
		name  string
		from  string
		to    string
		field string
	}{
		{"stop below entry", "stop_z: 4", "stop_z: 1.5", "backtest"},
		{"unknown exit mode", "exit_mode: zero_cross", "exit_mode: sometimes", "backtest"},
		{"pvalue above one", "pval_coint: 0.1", "pval_coint: 1.5", "selection.pval_coint"},
		{"negative weight", "sigma: 0.25", "sigma: -1", "scoring"},
		{"unsorted proxy", "max_half_life: 30", "max_half_life: 5", "stationarity.proxy"},
		{"one ticker", "tickers: [SPY, IVV, VOO]", "tickers: [SPY]", "universe.tickers"},
		{"tiny zscore window", "zscore_days: 20", "zscore_days: 1", "lookbacks.zscore_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(strings.Replace(validYAML, tt.from, tt.to, 1)))
			require.Error(t, err)

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParse_Stability(t *testing.T) {
	clearPG(t)
	const section = `
stability:
  enabled: true
  half_life_tol: 0.3
  beta_tol: 0.2
  subwindows: 3
  subwindow_days: 60
`
	cfg, err := Parse([]byte(validYAML + section))
	require.NoError(t, err)

	g := cfg.Scorer().Stability
	assert.True(t, g.Enabled)
	assert.Equal(t, 80, g.SplitMinObs)
	assert.InDelta(t, 2.0/3.0, g.MinPassRatio, 1e-12)
	assert.Equal(t, 0.1, g.MaxPValue)
	assert.Equal(t, 30.0, g.MaxHalfLife)
	assert.Equal(t, cfg.Scorer().Tester, g.Tester)

	tests := []struct {
		name  string
		from  string
		to    string
		field string
	}{
		{"negative tolerance", "beta_tol: 0.2", "beta_tol: -0.2", "stability.beta_tol"},
		{"short subwindows", "subwindow_days: 60", "subwindow_days: 2", "stability.subwindow_days"},
		{"nothing to check", "half_life_tol: 0.3\n  beta_tol: 0.2\n  subwindows: 3", "half_life_tol: 0\n  beta_tol: 0\n  subwindows: 0", "stability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(validYAML + strings.Replace(section, tt.from, tt.to, 1)))
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	cfg, err = Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.False(t, cfg.Scorer().Stability.Enabled)
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	clearPG(t)
	_, err := Parse([]byte(validYAML + "\nsurprise: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "surprise")
}

func TestParse_DatabaseEnvOverride(t *testing.T) {
	clearPG(t)
	t.Setenv("PG_ENABLED", "true")

	_, err := Parse([]byte(validYAML))
	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "database", cfgErr.Field)

	t.Setenv("PG_DSN", "postgres://localhost/pairs")
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.True(t, cfg.Database.Enabled)
}

func TestLoad_ExampleFile(t *testing.T) {
	clearPG(t)
	cfg, err := Load("../../config/params.yaml")
	require.NoError(t, err)
	assert.Len(t, cfg.Universe.Tickers, 10)
	assert.Equal(t, backtest.ExitThreshold, cfg.BacktestParams().ExitMode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("does/not/exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
