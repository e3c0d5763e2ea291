package scoring

import (
	"encoding/json"
	"math"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/stability"
	"github.com/sawpanic/pairsarb/internal/stationarity"
)

// PairScore is one row of the scored-pairs audit table.
type PairScore struct {
	Pair        domain.PairID
	Correlation float64
	PValue      float64
	// Method records which stationarity path produced PValue.
	Method       stationarity.Method
	ADFStatistic float64
	ADFLags      int
	// HalfLife is +Inf when undefined.
	HalfLife    float64
	SpreadSigma float64
	Alpha       float64
	Beta        float64
	Obs         int
	// Score is -Inf for failed pairs.
	Score float64
	// Stability is nil unless stability gates are enabled.
	Stability *stability.Report
	Reason    string
	Error     string
}

// Failed builds the audit row for a pair whose statistics could not be computed.
func Failed(pair domain.PairID, err error) PairScore {
	return PairScore{
		Pair:     pair,
		HalfLife: math.Inf(1),
		PValue:   1,
		Score:    math.Inf(-1),
		Reason:   domain.ReasonCode(err),
		Error:    err.Error(),
	}
}

// OK reports whether the pair scored successfully.
func (s PairScore) OK() bool { return s.Reason == "" }

// HalfLifeDefined reports whether the half-life is finite.
func (s PairScore) HalfLifeDefined() bool {
	return !math.IsInf(s.HalfLife, 0) && !math.IsNaN(s.HalfLife)
}

type pairScoreJSON struct {
	Pair         string              `json:"pair"`
	A            string              `json:"a"`
	B            string              `json:"b"`
	Correlation  *float64            `json:"correlation"`
	PValue       *float64            `json:"pvalue"`
	Method       stationarity.Method `json:"method,omitempty"`
	ADFStatistic *float64            `json:"adf_statistic,omitempty"`
	ADFLags      int                 `json:"adf_lags,omitempty"`
	HalfLife     *float64            `json:"half_life"`
	SpreadSigma  *float64            `json:"spread_sigma"`
	Alpha        *float64            `json:"alpha"`
	Beta         *float64            `json:"beta"`
	Obs          int                 `json:"obs"`
	Score        *float64            `json:"score"`
	Stability    *stability.Report   `json:"stability,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// MarshalJSON renders non-finite values (undefined half-life, failed score) as null.
func (s PairScore) MarshalJSON() ([]byte, error) {
	out := pairScoreJSON{
		Pair:     s.Pair.String(),
		A:        s.Pair.A,
		B:        s.Pair.B,
		Method:   s.Method,
		ADFLags:  s.ADFLags,
		HalfLife: finite(s.HalfLife),
		Obs:      s.Obs,
		Score:    finite(s.Score),
		Reason:   s.Reason,
		Error:    s.Error,
	}
	if s.OK() {
		out.Correlation = finite(s.Correlation)
		out.PValue = finite(s.PValue)
		out.SpreadSigma = finite(s.SpreadSigma)
		out.Alpha = finite(s.Alpha)
		out.Beta = finite(s.Beta)
		if s.Method == stationarity.MethodADF {
			out.ADFStatistic = finite(s.ADFStatistic)
		}
		out.Stability = s.Stability
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores rows written by MarshalJSON; nulls become the
// corresponding sentinels.
func (s *PairScore) UnmarshalJSON(data []byte) error {
	var in pairScoreJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = PairScore{
		Pair:         domain.NewPairID(in.A, in.B),
		Correlation:  orZero(in.Correlation),
		PValue:       orDefault(in.PValue, 1),
		Method:       in.Method,
		ADFStatistic: orZero(in.ADFStatistic),
		ADFLags:      in.ADFLags,
		HalfLife:     orDefault(in.HalfLife, math.Inf(1)),
		SpreadSigma:  orZero(in.SpreadSigma),
		Alpha:        orZero(in.Alpha),
		Beta:         orZero(in.Beta),
		Obs:          in.Obs,
		Score:        orDefault(in.Score, math.Inf(-1)),
		Stability:    in.Stability,
		Reason:       in.Reason,
		Error:        in.Error,
	}
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orZero(v *float64) float64 { return orDefault(v, 0) }

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
