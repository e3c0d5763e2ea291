package stability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/halflife"
	"github.com/sawpanic/pairsarb/internal/hedge"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/stationarity"
	"github.com/sawpanic/pairsarb/internal/synthetic"
)

func testGates() Gates {
	return Gates{
		Enabled:          true,
		HalfLifeTol:      0.3,
		BetaTol:          0.2,
		SplitMinObs:      80,
		Subwindows:       3,
		SubwindowLen:     100,
		MinPassRatio:     2.0 / 3.0,
		MaxPValue:        0.05,
		MaxHalfLife:      2,
		MinRegressionObs: 5,
		MinHalfLifeObs:   20,
		Tester: stationarity.Tester{
			Method: stationarity.MethodHalfLifeProxy,
			Proxy: stationarity.ProxyTable{
				Buckets: []stationarity.Bucket{{MaxHalfLife: 5, PValue: 0.01}, {MaxHalfLife: 10, PValue: 0.05}},
				Default: 0.2,
			},
		},
	}
}

func evaluate(t *testing.T, g Gates, a, b []float64) Report {
	t.Helper()
	ap, err := market.Align(synthetic.Series("AAA", a), synthetic.Series("BBB", b), market.PriceBest, 10)
	require.NoError(t, err)
	rel, err := hedge.Estimate(ap, 5)
	require.NoError(t, err)
	hl, err := halflife.Fit(rel.Values(), 20)
	require.NoError(t, err)
	return g.Evaluate(ap, ap, rel, hl.HalfLife)
}

func check(t *testing.T, r Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not evaluated", name)
	return Check{}
}

func TestEvaluate_StablePairPasses(t *testing.T) {
	a, b := synthetic.Collinear(300)
	rep := evaluate(t, testGates(), a, b)

	require.Len(t, rep.Checks, 3)
	assert.True(t, rep.OK(), "failed: %v", rep.Failed())
	assert.Empty(t, rep.Failed())
	assert.InDelta(t, 1.0, *check(t, rep, CheckRolling).Value, 1e-12)
	assert.Less(t, *check(t, rep, CheckBeta).Value, 0.01)
}

func TestEvaluate_BetaBreak(t *testing.T) {
	a, _ := synthetic.Collinear(300)
	noise := synthetic.AR1(99, 300, 0.5, 0.02)
	b := make([]float64, len(a))
	for i := range a {
		k := 2.0
		if i >= 150 {
			k = 3
		}
		b[i] = k*a[i] + noise[i]
	}

	rep := evaluate(t, testGates(), a, b)
	c := check(t, rep, CheckBeta)
	assert.False(t, c.OK)
	assert.Greater(t, *c.Value, 1.0)
	assert.False(t, rep.OK())
}

func TestEvaluate_HalfLifeBreak(t *testing.T) {
	a, _ := synthetic.Collinear(300)
	e := synthetic.Shocks(99, 300)
	noise := make([]float64, len(a))
	for i := 1; i < len(noise); i++ {
		phi := 0.3
		if i >= 150 {
			phi = 0.97
		}
		noise[i] = phi*noise[i-1] + 0.02*e[i]
	}
	b := make([]float64, len(a))
	for i := range a {
		b[i] = 2*a[i] + noise[i]
	}

	g := testGates()
	g.Subwindows = 0
	rep := evaluate(t, g, a, b)

	assert.False(t, check(t, rep, CheckHalfLife).OK)
	assert.True(t, check(t, rep, CheckBeta).OK)
	assert.Equal(t, []string{CheckHalfLife}, rep.Failed())
}

func TestEvaluate_RollingFailsWithoutReversion(t *testing.T) {
	a, _ := synthetic.Collinear(300)
	b := synthetic.RandomWalk(11, 300, 50, 1)

	g := testGates()
	g.HalfLifeTol, g.BetaTol = 0, 0
	rep := evaluate(t, g, a, b)

	require.Len(t, rep.Checks, 1)
	c := check(t, rep, CheckRolling)
	assert.False(t, c.OK)
	assert.InDelta(t, 0.0, *c.Value, 1e-12)
}

func TestEvaluate_RollingNeedsHistory(t *testing.T) {
	a, b := synthetic.Collinear(300)
	g := testGates()
	g.SubwindowLen = 120

	c := check(t, evaluate(t, g, a, b), CheckRolling)
	assert.False(t, c.OK)
}

func TestEvaluate_ShortWindowSkipsSplits(t *testing.T) {
	a, b := synthetic.Collinear(60)
	g := testGates()
	g.Subwindows = 0

	rep := evaluate(t, g, a, b)
	assert.True(t, rep.OK())
	assert.Equal(t, 0.0, *check(t, rep, CheckBeta).Value)
}

func TestEvaluate_MinHalfLife(t *testing.T) {
	a, b := synthetic.Collinear(300)
	g := testGates()
	g.MinHalfLife = 2

	c := check(t, evaluate(t, g, a, b), CheckHalfLife)
	assert.False(t, c.OK)
	assert.Nil(t, c.Value)
}

func TestReport_EmptyIsOK(t *testing.T) {
	g := Gates{Enabled: true}
	rep := g.Evaluate(domain.AlignedPair{}, domain.AlignedPair{}, hedge.Relation{}, 1)
	assert.Empty(t, rep.Checks)
	assert.True(t, rep.OK())
}
