package main

import (
	"bytes"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/config"
	"github.com/sawpanic/pairsarb/internal/domain"
)

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, setLogLevel("DEBUG"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Error(t, setLogLevel("verbose"))
}

func TestBacktestPairs_Explicit(t *testing.T) {
	pairs, err := backtestPairs(t.TempDir(), []string{"SPY/IVV", "QQQ/XLK"})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, domain.NewPairID("IVV", "SPY"), pairs[0].Pair)
	assert.True(t, math.IsInf(pairs[1].HalfLife, 1))

	_, err = backtestPairs(t.TempDir(), []string{"SPY"})
	assert.Error(t, err)
}

func TestBacktestPairs_NoLatestRun(t *testing.T) {
	_, err := backtestPairs(t.TempDir(), nil)
	assert.ErrorContains(t, err, "no latest selection")
}

func TestValidateCommand(t *testing.T) {
	for _, k := range []string{"PG_DSN", "PG_ENABLED", "PG_MIGRATE"} {
		t.Setenv(k, "")
	}
	root := &cobra.Command{Use: appName}
	root.PersistentFlags().String("config", config.DefaultPath, "")
	root.AddCommand(newValidateCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--config", "../../config/params.yaml"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ok (10 tickers, 45 pairs")

	root.SetArgs([]string{"validate", "--config", "missing.yaml"})
	assert.Error(t, root.Execute())
}
