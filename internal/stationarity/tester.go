// Package stationarity tests spreads for mean reversion.
//
// The primary path is an augmented Dickey-Fuller test. When that path is not
// available for a spread (configured off, or too short a sample) a proxy
// p-value is derived from the half-life. Both paths report on the same [0, 1]
// scale and the result records which one produced it.
package stationarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/sawpanic/pairsarb/internal/market"
)

// Method identifies the path that produced a p-value.
type Method string

const (
	MethodADF           Method = "adf"
	MethodHalfLifeProxy Method = "halflife_proxy"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool { return m == MethodADF || m == MethodHalfLifeProxy }

// Result is a stationarity verdict for one spread.
type Result struct {
	Method Method  `json:"method"`
	PValue float64 `json:"pvalue"`
	// Statistic and Lags are only set by MethodADF.
	Statistic float64 `json:"statistic,omitempty"`
	Lags      int     `json:"lags,omitempty"`
	Constant  bool    `json:"constant,omitempty"`
}

// Bucket maps half-lives up to MaxHalfLife (inclusive) to PValue.
type Bucket struct {
	MaxHalfLife float64 `yaml:"max_half_life" json:"max_half_life"`
	PValue      float64 `yaml:"pvalue" json:"pvalue"`
}

// ProxyTable is the monotonic half-life to p-value transform.
type ProxyTable struct {
	Buckets []Bucket
	// Default applies to defined half-lives beyond the last bucket.
	Default float64
}

// Validate checks that the table is monotonic and on the [0, 1] scale.
func (t ProxyTable) Validate() error {
	if len(t.Buckets) == 0 {
		return fmt.Errorf("at least one bucket is required")
	}
	if !sort.SliceIsSorted(t.Buckets, func(i, j int) bool { return t.Buckets[i].MaxHalfLife < t.Buckets[j].MaxHalfLife }) {
		return fmt.Errorf("buckets must be sorted by max_half_life")
	}
	prev := 0.0
	for i, b := range t.Buckets {
		if !(b.MaxHalfLife > 0) || math.IsInf(b.MaxHalfLife, 0) {
			return fmt.Errorf("bucket %d: max_half_life must be a positive finite number", i)
		}
		if i > 0 && b.MaxHalfLife == t.Buckets[i-1].MaxHalfLife {
			return fmt.Errorf("bucket %d: duplicate max_half_life %g", i, b.MaxHalfLife)
		}
		if b.PValue < prev || b.PValue > 1 {
			return fmt.Errorf("bucket %d: pvalue must be in [%g, 1]", i, prev)
		}
		prev = b.PValue
	}
	if t.Default < prev || t.Default > 1 {
		return fmt.Errorf("default must be in [%g, 1]", prev)
	}
	return nil
}

// PValue returns the proxy p-value for a half-life. Undefined half-lives map to 1.
func (t ProxyTable) PValue(halfLife float64) float64 {
	if !market.Finite(halfLife) || halfLife <= 0 {
		return 1
	}
	for _, b := range t.Buckets {
		if halfLife <= b.MaxHalfLife {
			return b.PValue
		}
	}
	return t.Default
}

// Tester selects between the ADF and proxy paths.
type Tester struct {
	Method Method
	MaxLag int
	// MinObs is the shortest spread the ADF path will accept.
	MinObs int
	Proxy  ProxyTable
}

// Test returns the stationarity result for a spread. halfLife is the spread's
// half-life estimate (+Inf when undefined) and feeds the proxy path.
func (t Tester) Test(spread []float64, halfLife float64) (Result, error) {
	clean := make([]float64, 0, len(spread))
	for _, v := range spread {
		if market.Finite(v) {
			clean = append(clean, v)
		}
	}

	method := t.path(len(clean))
	if market.Constant(clean) {
		return Result{Method: method, PValue: 1, Constant: true}, nil
	}

	if method == MethodHalfLifeProxy {
		return Result{Method: method, PValue: t.Proxy.PValue(halfLife)}, nil
	}

	adf, err := ADF(clean, t.MaxLag)
	if err != nil {
		return Result{}, fmt.Errorf("stationarity: %w", err)
	}
	return Result{Method: MethodADF, PValue: adf.PValue, Statistic: adf.Statistic, Lags: adf.Lags}, nil
}

// path reports which method applies to a spread of n finite points.
func (t Tester) path(n int) Method {
	minObs := t.MinObs
	if floor := 2*t.MaxLag + 5; minObs < floor {
		minObs = floor
	}
	if t.Method == MethodHalfLifeProxy || n < minObs {
		return MethodHalfLifeProxy
	}
	return MethodADF
}
