// Package signal turns a spread into a rolling z-score series.
package signal

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/market"
)

// ExclusionReason says why a timestamp has no z-score.
type ExclusionReason string

const (
	ExcludedWarmup     ExclusionReason = "warmup"
	ExcludedFlatWindow ExclusionReason = "flat_window"
	ExcludedInvalid    ExclusionReason = "invalid"
)

// Point is one defined z-score.
type Point struct {
	Timestamp time.Time `json:"ts"`
	Spread    float64   `json:"spread"`
	Mean      float64   `json:"rolling_mean"`
	Std       float64   `json:"rolling_std"`
	Z         float64   `json:"zscore"`
}

// Exclusion records a timestamp with an undefined z-score.
type Exclusion struct {
	Timestamp time.Time       `json:"ts"`
	Reason    ExclusionReason `json:"reason"`
}

// Series holds the defined z-scores in timestamp order. Undefined points are
// listed in Excluded and never appear in Points.
type Series struct {
	Window   int         `json:"window"`
	Points   []Point     `json:"points"`
	Excluded []Exclusion `json:"excluded"`

	index map[int64]int
}

// ZScores computes rolling z-scores over a trailing window that includes the
// current point. Standard deviations use the sample (n-1) estimator.
func ZScores(spread []domain.SeriesPoint, window int) (Series, error) {
	if window < 2 {
		return Series{}, &domain.ConfigurationError{Field: "lookbacks.zscore_window", Reason: "must be >= 2"}
	}

	out := Series{Window: window, Points: make([]Point, 0, len(spread))}
	buf := make([]float64, window)
	for i, sp := range spread {
		if i < window-1 {
			out.Excluded = append(out.Excluded, Exclusion{Timestamp: sp.Timestamp, Reason: ExcludedWarmup})
			continue
		}
		copy(buf, domain.Values(spread[i-window+1:i+1]))
		switch {
		case !allFinite(buf):
			out.Excluded = append(out.Excluded, Exclusion{Timestamp: sp.Timestamp, Reason: ExcludedInvalid})
			continue
		case market.Constant(buf):
			out.Excluded = append(out.Excluded, Exclusion{Timestamp: sp.Timestamp, Reason: ExcludedFlatWindow})
			continue
		}

		mean, std := stat.MeanStdDev(buf, nil)
		z := (sp.Value - mean) / std
		if !market.Finite(z) {
			out.Excluded = append(out.Excluded, Exclusion{Timestamp: sp.Timestamp, Reason: ExcludedFlatWindow})
			continue
		}
		out.Points = append(out.Points, Point{Timestamp: sp.Timestamp, Spread: sp.Value, Mean: mean, Std: std, Z: z})
	}
	out.buildIndex()
	return out, nil
}

// Degenerate returns a *domain.DegenerateSignalError when any window was flat.
// The affected points are already excluded, so callers may log and continue.
func (s Series) Degenerate() error {
	n := 0
	for _, e := range s.Excluded {
		if e.Reason == ExcludedFlatWindow {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return &domain.DegenerateSignalError{Window: s.Window, Excluded: n}
}

// At returns the z-score point for a timestamp, if defined.
func (s Series) At(ts time.Time) (Point, bool) {
	if s.index == nil {
		for _, p := range s.Points {
			if p.Timestamp.Equal(ts) {
				return p, true
			}
		}
		return Point{}, false
	}
	i, ok := s.index[ts.UnixNano()]
	if !ok {
		return Point{}, false
	}
	return s.Points[i], true
}

func (s *Series) buildIndex() {
	s.index = make(map[int64]int, len(s.Points))
	for i, p := range s.Points {
		s.index[p.Timestamp.UnixNano()] = i
	}
}

// Window returns the z-score window for a pair. With a positive multiplier and
// a defined half-life it widens to ceil(mult*halfLife); it never shrinks below base.
func Window(base int, mult, halfLife float64) int {
	if mult <= 0 || !market.Finite(halfLife) || halfLife <= 0 {
		return base
	}
	dyn := math.Ceil(mult * halfLife)
	if dyn > float64(base) && dyn < math.MaxInt32 {
		return int(dyn)
	}
	return base
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !market.Finite(x) {
			return false
		}
	}
	return true
}
