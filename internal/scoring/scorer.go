// Package scoring computes per-pair statistics and the composite ranking score.
package scoring

import (
	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/halflife"
	"github.com/sawpanic/pairsarb/internal/hedge"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/stability"
	"github.com/sawpanic/pairsarb/internal/stationarity"
)

// Scorer holds everything needed to score one pair. It is immutable and safe
// for concurrent use.
type Scorer struct {
	CorrelationLookback   int
	CointegrationLookback int
	// MinObservations is the minimum aligned window for any pair.
	MinObservations  int
	MinRegressionObs int
	MinHalfLifeObs   int
	Policy           market.PricePolicy
	Weights          Weights
	Tester           stationarity.Tester
	// Stability gates are evaluated on successfully scored pairs when enabled.
	Stability stability.Gates
}

// Score runs alignment, hedge estimation, half-life, stationarity and
// correlation for one pair. Failures are returned as audit rows, never as errors.
// Argument order does not matter.
func (s Scorer) Score(x, y domain.PriceSeries) PairScore {
	pair := domain.NewPairID(x.Symbol, y.Symbol)
	row, err := s.score(x, y)
	if err != nil {
		return Failed(pair, err)
	}
	return row
}

func (s Scorer) score(x, y domain.PriceSeries) (PairScore, error) {
	ap, err := market.Align(x, y, s.Policy, s.MinObservations)
	if err != nil {
		return PairScore{}, err
	}

	corr, err := ReturnCorrelation(ap.Tail(s.CorrelationLookback))
	if err != nil {
		return PairScore{}, err
	}

	window := ap.Tail(s.CointegrationLookback)
	rel, err := hedge.Estimate(window, s.MinRegressionObs)
	if err != nil {
		return PairScore{}, err
	}
	spread := rel.Values()

	hl, err := halflife.Fit(spread, s.MinHalfLifeObs)
	if err != nil {
		return PairScore{}, err
	}
	st, err := s.Tester.Test(spread, hl.HalfLife)
	if err != nil {
		return PairScore{}, err
	}
	sigma := stat.StdDev(spread, nil)

	row := PairScore{
		Pair:         ap.Pair,
		Correlation:  corr,
		PValue:       st.PValue,
		Method:       st.Method,
		ADFStatistic: st.Statistic,
		ADFLags:      st.Lags,
		HalfLife:     hl.HalfLife,
		SpreadSigma:  sigma,
		Alpha:        rel.Alpha,
		Beta:         rel.Beta,
		Obs:          window.Len(),
		Score:        Composite(s.Weights, corr, st.PValue, hl.HalfLife, sigma),
	}
	if s.Stability.Enabled {
		rep := s.Stability.Evaluate(ap, window, rel, hl.HalfLife)
		row.Stability = &rep
	}
	return row, nil
}

// ReturnCorrelation is the Pearson correlation of simple returns of both legs.
// Returns that are not finite (zero or missing prices) are dropped pairwise.
func ReturnCorrelation(ap domain.AlignedPair) (float64, error) {
	ra := make([]float64, 0, ap.Len())
	rb := make([]float64, 0, ap.Len())
	for i := 1; i < ap.Len(); i++ {
		prev, cur := ap.Points[i-1], ap.Points[i]
		a := cur.CloseA/prev.CloseA - 1
		b := cur.CloseB/prev.CloseB - 1
		if !market.Finite(a) || !market.Finite(b) {
			continue
		}
		ra = append(ra, a)
		rb = append(rb, b)
	}
	if len(ra) < 3 {
		return 0, &domain.InsufficientDataError{Stage: "correlation", Have: len(ra), Need: 3}
	}
	if market.Constant(ra) || market.Constant(rb) {
		return 0, &domain.DegenerateRegressionError{Stage: "correlation", Reason: "zero-variance returns"}
	}
	return stat.Correlation(ra, rb, nil), nil
}

// Pairs enumerates every unordered pair of a universe in canonical form.
// Duplicate symbols are ignored, keeping the first occurrence.
func Pairs(universe []string) []domain.PairID {
	seen := make(map[string]bool, len(universe))
	uniq := make([]string, 0, len(universe))
	for _, sym := range universe {
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		uniq = append(uniq, sym)
	}

	out := make([]domain.PairID, 0, len(uniq)*(len(uniq)-1)/2)
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			out = append(out, domain.NewPairID(uniq[i], uniq[j]))
		}
	}
	return out
}
