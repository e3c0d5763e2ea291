// Package stability checks that a pair's hedge and mean reversion hold up on
// sub-samples of its history, not only on the full scoring window.
package stability

import (
	"math"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/halflife"
	"github.com/sawpanic/pairsarb/internal/hedge"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/stationarity"
)

// Check names
const (
	CheckHalfLife = "half_life"
	CheckBeta     = "beta"
	CheckRolling  = "rolling_coint"
)

// betaFloor keeps the relative beta drift finite for near-zero hedge ratios.
const betaFloor = 1e-6

// Gates configures the stability checks. A check with a zero tolerance or
// zero subwindows is skipped.
type Gates struct {
	Enabled bool

	// HalfLifeTol bounds the relative drift of the half-life re-estimated on
	// the last 75% and last 50% of the window.
	HalfLifeTol float64
	// MinHalfLife rejects reversion faster than this many bars; 0 disables.
	MinHalfLife float64
	// BetaTol bounds |beta(first half) - beta(second half)| / |beta|.
	BetaTol float64
	// SplitMinObs is the window length below which the split checks pass untested.
	SplitMinObs int

	// Subwindows consecutive windows of SubwindowLen bars, ending at the last
	// bar, are refit and tested; MinPassRatio of them must pass.
	Subwindows   int
	SubwindowLen int
	MinPassRatio float64
	MaxPValue    float64
	MaxHalfLife  float64

	MinRegressionObs int
	MinHalfLifeObs   int
	Tester           stationarity.Tester
}

// Check is the outcome of one gate.
type Check struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	// Value is the measured drift, or the pass ratio for rolling_coint; nil when undefined.
	Value *float64 `json:"value"`
	Limit float64  `json:"limit"`
}

// Report lists the gates evaluated for one pair.
type Report struct {
	Checks []Check `json:"checks"`
}

// OK reports whether every evaluated gate passed.
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Failed returns the names of the gates that did not pass.
func (r Report) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c.Name)
		}
	}
	return out
}

// Evaluate runs the configured gates. full is the whole aligned history,
// window the scoring window that fit was estimated on, and halfLife the
// window spread's half-life.
func (g Gates) Evaluate(full, window domain.AlignedPair, fit hedge.Relation, halfLife float64) Report {
	rep := Report{Checks: []Check{}}
	if g.HalfLifeTol > 0 {
		rep.Checks = append(rep.Checks, g.halfLifeCheck(fit.Values(), halfLife))
	}
	if g.BetaTol > 0 {
		rep.Checks = append(rep.Checks, g.betaCheck(window, fit.Beta))
	}
	if g.Subwindows > 0 {
		rep.Checks = append(rep.Checks, g.rollingCheck(full))
	}
	return rep
}

func (g Gates) halfLifeCheck(spread []float64, hl float64) Check {
	c := Check{Name: CheckHalfLife, Limit: g.HalfLifeTol}
	if !market.Finite(hl) || hl < g.MinHalfLife {
		return c
	}
	n := len(spread)
	if n < g.SplitMinObs {
		c.OK, c.Value = true, value(0)
		return c
	}

	drift := 0.0
	for _, from := range []int{n / 4, n / 2} {
		est, err := halflife.Fit(spread[from:], g.MinHalfLifeObs)
		if err != nil || !est.Defined() {
			return c
		}
		drift = math.Max(drift, math.Abs(est.HalfLife-hl)/math.Max(hl, 1e-6))
	}
	c.Value = value(drift)
	c.OK = drift <= g.HalfLifeTol
	return c
}

func (g Gates) betaCheck(window domain.AlignedPair, beta float64) Check {
	c := Check{Name: CheckBeta, Limit: g.BetaTol}
	n := window.Len()
	if n < g.SplitMinObs {
		c.OK, c.Value = true, value(0)
		return c
	}

	mid := n / 2
	first, err := hedge.Estimate(domain.AlignedPair{Pair: window.Pair, Points: window.Points[:mid]}, g.MinRegressionObs)
	if err != nil {
		return c
	}
	second, err := hedge.Estimate(domain.AlignedPair{Pair: window.Pair, Points: window.Points[mid:]}, g.MinRegressionObs)
	if err != nil {
		return c
	}
	drift := math.Abs(first.Beta-second.Beta) / math.Max(math.Abs(beta), betaFloor)
	c.Value = value(drift)
	c.OK = drift <= g.BetaTol
	return c
}

// rollingCheck refits every subwindow independently. A subwindow that cannot
// be fit counts as failing.
func (g Gates) rollingCheck(full domain.AlignedPair) Check {
	c := Check{Name: CheckRolling, Limit: g.MinPassRatio}
	n := full.Len()
	if n < g.Subwindows*g.SubwindowLen {
		c.Value = value(0)
		return c
	}

	passed := 0
	for i := 0; i < g.Subwindows; i++ {
		end := n - i*g.SubwindowLen
		win := domain.AlignedPair{Pair: full.Pair, Points: full.Points[end-g.SubwindowLen : end]}
		if g.subwindowPasses(win) {
			passed++
		}
	}
	ratio := float64(passed) / float64(g.Subwindows)
	c.Value = value(ratio)
	c.OK = ratio >= g.MinPassRatio
	return c
}

func (g Gates) subwindowPasses(win domain.AlignedPair) bool {
	rel, err := hedge.Estimate(win, g.MinRegressionObs)
	if err != nil {
		return false
	}
	spread := rel.Values()
	hl, err := halflife.Fit(spread, g.MinHalfLifeObs)
	if err != nil || !hl.Defined() {
		return false
	}
	st, err := g.Tester.Test(spread, hl.HalfLife)
	if err != nil {
		return false
	}
	return st.PValue <= g.MaxPValue && hl.HalfLife <= g.MaxHalfLife
}

func value(v float64) *float64 {
	if !market.Finite(v) {
		return nil
	}
	return &v
}
