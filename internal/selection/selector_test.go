package selection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/scoring"
	"github.com/sawpanic/pairsarb/internal/stability"
)

func row(a, b string, corr, p, hl, score float64) scoring.PairScore {
	return scoring.PairScore{
		Pair:        domain.NewPairID(a, b),
		Correlation: corr,
		PValue:      p,
		HalfLife:    hl,
		Score:       score,
	}
}

func thresholds() Thresholds {
	return Thresholds{MinCorrelation: 0.8, MaxHalfLife: 30, MaxPValue: 0.1, MaxPairs: 3}
}

func table() []scoring.PairScore {
	return []scoring.PairScore{
		row("SPY", "IVV", 0.99, 0.01, 4, 9.5),
		row("XLE", "XLB", 0.85, 0.05, 12, 7.0),
		row("QQQ", "XLK", 0.95, 0.02, 6, 7.0),
		row("IWM", "DIA", 0.75, 0.01, 5, 8.0), // correlation
		row("GLD", "SLV", 0.9, 0.3, 8, 6.0),   // pvalue
		row("TLT", "IEF", 0.9, 0.05, 45, 5.5), // half-life
		row("EFA", "EEM", 0.9, 0.01, math.Inf(1), 5.0),
		row("XLU", "XLP", 0.82, 0.08, 20, 4.0),
		scoring.Failed(domain.NewPairID("ARKK", "XBI"), &domain.InsufficientDataError{Stage: "align"}),
	}
}

func TestSelectFiltersAndRanks(t *testing.T) {
	got := Select(table(), thresholds())
	require.Len(t, got, 3)

	assert.Equal(t, "IVV/SPY", got[0].Pair.String())
	// equal scores break ties on pair id
	assert.Equal(t, "QQQ/XLK", got[1].Pair.String())
	assert.Equal(t, "XLB/XLE", got[2].Pair.String())
}

func TestSelectIdempotent(t *testing.T) {
	th := thresholds()
	first := Select(table(), th)
	second := Select(first, th)
	assert.Equal(t, first, second)
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	in := table()
	before := append([]scoring.PairScore(nil), in...)
	Select(in, thresholds())
	assert.Equal(t, before, in)
}

func TestSelectEmpty(t *testing.T) {
	th := thresholds()
	th.MinCorrelation = 0.999
	got := Select(table(), th)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSelectBoundaryValuesPass(t *testing.T) {
	got := Select([]scoring.PairScore{row("A", "B", 0.8, 0.1, 30, 1)}, thresholds())
	assert.Len(t, got, 1)
}

func TestRejections(t *testing.T) {
	counts := Rejections(table(), thresholds())
	assert.Equal(t, map[Rejection]int{
		RejectCorrelation: 1,
		RejectPValue:      1,
		RejectHalfLife:    2,
		RejectFailed:      1,
	}, counts)
}

func TestSelectRejectsUnstablePairs(t *testing.T) {
	stable := row("SPY", "IVV", 0.99, 0.01, 4, 9.5)
	stable.Stability = &stability.Report{Checks: []stability.Check{{Name: stability.CheckBeta, OK: true}}}
	unstable := row("QQQ", "XLK", 0.95, 0.02, 6, 9.9)
	unstable.Stability = &stability.Report{Checks: []stability.Check{
		{Name: stability.CheckBeta, OK: true},
		{Name: stability.CheckRolling, OK: false},
	}}
	unchecked := row("XLE", "XLB", 0.85, 0.05, 12, 7.0)

	rows := []scoring.PairScore{stable, unstable, unchecked}
	assert.Equal(t, RejectStability, thresholds().Check(unstable))

	got := Select(rows, thresholds())
	require.Len(t, got, 2)
	assert.Equal(t, stable.Pair, got[0].Pair)
	assert.Equal(t, unchecked.Pair, got[1].Pair)
	assert.Equal(t, map[Rejection]int{RejectStability: 1}, Rejections(rows, thresholds()))
}
