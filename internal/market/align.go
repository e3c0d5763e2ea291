package market

import (
	"math"

	"github.com/sawpanic/pairsarb/internal/domain"
)

// PricePolicy selects which field of a bar feeds the statistics.
type PricePolicy string

const (
	// PriceBest uses the adjusted close and falls back to close row by row.
	PriceBest PricePolicy = "best"
	// PriceCloseOnly ignores adjusted closes.
	PriceCloseOnly PricePolicy = "close_only"
)

// Valid reports whether the policy is known.
func (p PricePolicy) Valid() bool {
	return p == PriceBest || p == PriceCloseOnly
}

// PriceOf returns the price of a bar under the policy.
func PriceOf(b domain.Bar, policy PricePolicy) float64 {
	if policy == PriceBest && b.AdjustedClose > 0 && !math.IsInf(b.AdjustedClose, 0) && !math.IsNaN(b.AdjustedClose) {
		return b.AdjustedClose
	}
	return b.Close
}

// Align inner-joins two price series on timestamp equality, keeping chronological order.
// The result is in canonical pair order: leg A is the lexicographically smaller symbol.
// It fails with InsufficientDataError when fewer than minObs timestamps are shared.
func Align(x, y domain.PriceSeries, policy PricePolicy, minObs int) (domain.AlignedPair, error) {
	if y.Symbol < x.Symbol {
		x, y = y, x
	}
	out := domain.AlignedPair{Pair: domain.NewPairID(x.Symbol, y.Symbol)}

	i, j := 0, 0
	for i < len(x.Bars) && j < len(y.Bars) {
		ta, tb := x.Bars[i].Timestamp, y.Bars[j].Timestamp
		switch {
		case ta.Equal(tb):
			out.Points = append(out.Points, domain.AlignedPoint{
				Timestamp: ta,
				CloseA:    PriceOf(x.Bars[i], policy),
				CloseB:    PriceOf(y.Bars[j], policy),
			})
			i++
			j++
		case ta.Before(tb):
			i++
		default:
			j++
		}
	}

	need := minObs
	if need < 1 {
		need = 1
	}
	if len(out.Points) < need {
		return domain.AlignedPair{}, &domain.InsufficientDataError{Stage: "align", Have: len(out.Points), Need: need}
	}
	return out, nil
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Constant reports whether every value equals the first. Exact comparison:
// a computed variance of identical values can come out as a tiny positive number.
func Constant(v []float64) bool {
	for _, x := range v {
		if x != v[0] {
			return false
		}
	}
	return true
}
