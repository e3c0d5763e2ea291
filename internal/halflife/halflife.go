// Package halflife estimates the mean-reversion half-life of a spread from an AR(1) fit.
package halflife

import (
	"math"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/market"
)

// Estimate is the AR(1) fit of the demeaned spread.
type Estimate struct {
	Phi float64
	// HalfLife is in bars. +Inf when undefined.
	HalfLife float64
	Obs      int
}

// Defined reports whether the spread shows mean reversion (0 < phi < 1).
func (e Estimate) Defined() bool {
	return !math.IsInf(e.HalfLife, 0) && !math.IsNaN(e.HalfLife)
}

// Fit demeans the spread and regresses s[t] on s[t-1] through the origin.
// Non-finite values are dropped first. minLagged is the minimum number of
// (s[t-1], s[t]) pairs required.
func Fit(spread []float64, minLagged int) (Estimate, error) {
	clean := make([]float64, 0, len(spread))
	for _, v := range spread {
		if market.Finite(v) {
			clean = append(clean, v)
		}
	}

	lagged := len(clean) - 1
	if lagged < 0 {
		lagged = 0
	}
	if minLagged < 1 {
		minLagged = 1
	}
	if lagged < minLagged {
		return Estimate{}, &domain.InsufficientDataError{Stage: "half_life", Have: lagged, Need: minLagged}
	}

	var mean float64
	for _, v := range clean {
		mean += v
	}
	mean /= float64(len(clean))

	var num, den float64
	for t := 1; t < len(clean); t++ {
		prev := clean[t-1] - mean
		num += (clean[t] - mean) * prev
		den += prev * prev
	}

	est := Estimate{Phi: math.NaN(), HalfLife: math.Inf(1), Obs: lagged}
	if den == 0 {
		// flat spread
		return est, nil
	}
	est.Phi = num / den
	est.HalfLife = FromPhi(est.Phi)
	return est, nil
}

// FromPhi converts an AR(1) coefficient to a half-life in bars.
// It returns +Inf unless 0 < phi < 1.
func FromPhi(phi float64) float64 {
	if !(phi > 0 && phi < 1) {
		return math.Inf(1)
	}
	return math.Log(0.5) / math.Log(phi)
}
