// Package hedge estimates the linear hedge relation between two aligned price series.
package hedge

import (
	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/market"
)

// minFitObs is the smallest sample that admits a meaningful two-parameter fit.
const minFitObs = 3

// Relation is the OLS fit y = Alpha + Beta*x with its residual spread.
// y is leg A and x is leg B of the aligned pair.
type Relation struct {
	Pair   domain.PairID        `json:"pair"`
	Alpha  float64              `json:"alpha"`
	Beta   float64              `json:"beta"`
	Spread []domain.SeriesPoint `json:"spread"`
	// Dropped counts rows removed because either leg was not finite.
	Dropped int `json:"dropped"`
}

// Estimate fits the hedge relation by ordinary least squares.
// Rows where either close is NaN or infinite are dropped before fitting.
func Estimate(ap domain.AlignedPair, minObs int) (Relation, error) {
	if minObs < minFitObs {
		minObs = minFitObs
	}

	clean := Clean(ap)
	kept := clean.Points
	ys, xs := clean.ClosesA(), clean.ClosesB()

	if len(kept) < minObs {
		return Relation{}, &domain.InsufficientDataError{Stage: "hedge", Have: len(kept), Need: minObs}
	}
	if market.Constant(xs) {
		return Relation{}, &domain.DegenerateRegressionError{Stage: "hedge", Reason: "zero-variance predictor " + ap.Pair.B}
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if !market.Finite(alpha) || !market.Finite(beta) {
		return Relation{}, &domain.DegenerateRegressionError{Stage: "hedge", Reason: "non-finite coefficients"}
	}

	return Relation{
		Pair:    ap.Pair,
		Alpha:   alpha,
		Beta:    beta,
		Spread:  SpreadOf(kept, alpha, beta),
		Dropped: ap.Len() - len(kept),
	}, nil
}

// Clean drops rows where either close is NaN or infinite.
func Clean(ap domain.AlignedPair) domain.AlignedPair {
	out := domain.AlignedPair{Pair: ap.Pair, Points: make([]domain.AlignedPoint, 0, ap.Len())}
	for _, p := range ap.Points {
		if market.Finite(p.CloseA) && market.Finite(p.CloseB) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// SpreadOf computes y - (alpha + beta*x) for each point.
func SpreadOf(points []domain.AlignedPoint, alpha, beta float64) []domain.SeriesPoint {
	out := make([]domain.SeriesPoint, len(points))
	for i, p := range points {
		out[i] = domain.SeriesPoint{Timestamp: p.Timestamp, Value: p.CloseA - (alpha + beta*p.CloseB)}
	}
	return out
}

// Values returns the spread values in order.
func (r Relation) Values() []float64 {
	return domain.Values(r.Spread)
}
