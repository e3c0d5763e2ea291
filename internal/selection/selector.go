// Package selection filters and ranks scored pairs.
package selection

import (
	"sort"

	"github.com/sawpanic/pairsarb/internal/scoring"
)

// Thresholds gate which scored pairs are tradable.
type Thresholds struct {
	MinCorrelation float64 `json:"min_corr"`
	MaxHalfLife    float64 `json:"max_half_life"`
	MaxPValue      float64 `json:"max_coint_pvalue"`
	MaxPairs       int     `json:"max_pairs"`
}

// Rejection explains why a scored pair was filtered out.
type Rejection string

const (
	RejectFailed      Rejection = "failed"
	RejectCorrelation Rejection = "correlation"
	RejectHalfLife    Rejection = "half_life"
	RejectPValue      Rejection = "pvalue"
	RejectStability   Rejection = "stability"
)

// Check returns the first threshold the row fails, or "" when it passes.
func (t Thresholds) Check(row scoring.PairScore) Rejection {
	switch {
	case !row.OK():
		return RejectFailed
	case !(row.Correlation >= t.MinCorrelation):
		return RejectCorrelation
	case !row.HalfLifeDefined() || row.HalfLife > t.MaxHalfLife:
		return RejectHalfLife
	case !(row.PValue <= t.MaxPValue):
		return RejectPValue
	case row.Stability != nil && !row.Stability.OK():
		return RejectStability
	}
	return ""
}

// Select filters rows against the thresholds, ranks survivors by score
// descending with ties broken by pair identifier ascending, and keeps at most
// MaxPairs. The input is not modified. An empty result is not an error.
func Select(rows []scoring.PairScore, t Thresholds) []scoring.PairScore {
	out := make([]scoring.PairScore, 0, len(rows))
	for _, row := range rows {
		if t.Check(row) == "" {
			out = append(out, row)
		}
	}
	Rank(out)
	if t.MaxPairs >= 0 && len(out) > t.MaxPairs {
		out = out[:t.MaxPairs]
	}
	return out
}

// Rank sorts rows in place by score descending, then pair ascending.
func Rank(rows []scoring.PairScore) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Pair.Less(rows[j].Pair)
	})
}

// Rejections counts filtered rows by reason, for logging and metrics.
func Rejections(rows []scoring.PairScore, t Thresholds) map[Rejection]int {
	out := make(map[Rejection]int)
	for _, row := range rows {
		if r := t.Check(row); r != "" {
			out[r]++
		}
	}
	return out
}
