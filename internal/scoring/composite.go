package scoring

import (
	"fmt"
	"math"
)

// Weights parameterize the composite score. Every field is required; there
// are no implicit defaults.
type Weights struct {
	Correlation float64
	PValue      float64
	HalfLife    float64
	Sigma       float64
	// PValueFloor bounds -ln(p) for p-values at or near zero.
	PValueFloor float64
}

// Validate checks the weights are usable.
func (w Weights) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"correlation", w.Correlation},
		{"pvalue", w.PValue},
		{"half_life", w.HalfLife},
		{"sigma", w.Sigma},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("weight %s must be a finite non-negative number", f.name)
		}
	}
	if !(w.PValueFloor > 0 && w.PValueFloor < 1) {
		return fmt.Errorf("pvalue_floor must be in (0, 1)")
	}
	return nil
}

// Composite combines the four pair statistics into one ranking value:
//
//	w_corr*max(0, corr) + w_p*(-ln(max(p, floor))) + w_hl/(1+hl) + w_sigma/(1+sigma)
//
// Higher correlation, lower p-value, shorter half-life and lower spread
// volatility each raise the score. An undefined (+Inf) half-life contributes
// nothing.
func Composite(w Weights, corr, pvalue, halfLife, sigma float64) float64 {
	p := math.Max(pvalue, w.PValueFloor)
	score := w.Correlation*math.Max(0, corr) + w.PValue*(-math.Log(p))
	if !math.IsInf(halfLife, 1) {
		score += w.HalfLife / (1 + halfLife)
	}
	score += w.Sigma / (1 + sigma)
	return score
}
