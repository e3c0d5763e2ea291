package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/pairsarb/internal/domain"
)

// State is the position state of a pair.
type State string

const (
	Flat        State = "FLAT"
	LongSpread  State = "LONG_SPREAD"
	ShortSpread State = "SHORT_SPREAD"
)

// direction is +1 long spread, -1 short spread, 0 flat.
func (s State) direction() float64 {
	switch s {
	case LongSpread:
		return 1
	case ShortSpread:
		return -1
	}
	return 0
}

// ExitReason labels why a position was closed.
type ExitReason string

const (
	ReasonExit     ExitReason = "EXIT"
	ReasonStop     ExitReason = "STOP"
	ReasonTimeStop ExitReason = "TIME_STOP"
)

// ExitMode selects the mean-reversion exit rule.
type ExitMode string

const (
	// ExitThreshold closes when |z| <= exit_z.
	ExitThreshold ExitMode = "threshold"
	// ExitZeroCross closes when z crosses zero against the entry side.
	ExitZeroCross ExitMode = "zero_cross"
)

// Params configure one simulation. PerTradePct is a fraction of capital.
type Params struct {
	EntryZ       float64  `json:"entry_z"`
	ExitZ        float64  `json:"exit_z"`
	StopZ        float64  `json:"stop_z"`
	TimeStopBars int      `json:"time_stop_bars"`
	ExitMode     ExitMode `json:"exit_mode"`

	Capital     float64 `json:"capital"`
	PerTradePct float64 `json:"per_trade_pct"`
	CostBps     float64 `json:"cost_bps"`

	CoolOffBars           int `json:"cool_off_bars"`
	MinBarsBetweenEntries int `json:"min_bars_between_entries"`
}

// Validate checks threshold ordering and ranges.
func (p Params) Validate() error {
	switch {
	case !(p.EntryZ > 0):
		return fmt.Errorf("entry_z must be > 0")
	case p.ExitZ < 0 || !(p.ExitZ < p.EntryZ):
		return fmt.Errorf("exit_z must be in [0, entry_z)")
	case !(p.StopZ > p.EntryZ) || math.IsInf(p.StopZ, 0):
		return fmt.Errorf("stop_z must be finite and > entry_z")
	case p.TimeStopBars < 1:
		return fmt.Errorf("time_stop_bars must be >= 1")
	case p.ExitMode != ExitThreshold && p.ExitMode != ExitZeroCross:
		return fmt.Errorf("exit_mode must be %q or %q", ExitThreshold, ExitZeroCross)
	case !(p.Capital > 0):
		return fmt.Errorf("capital must be > 0")
	case !(p.PerTradePct > 0 && p.PerTradePct <= 1):
		return fmt.Errorf("per_trade_pct must be in (0, 1]")
	case p.CostBps < 0:
		return fmt.Errorf("cost_bps must be >= 0")
	case p.CoolOffBars < 0 || p.MinBarsBetweenEntries < 0:
		return fmt.Errorf("entry spacing must be >= 0")
	}
	return nil
}

// TradeRecord is appended to the journal every time a position closes.
type TradeRecord struct {
	Pair      domain.PairID `json:"pair"`
	EntryTime time.Time     `json:"entry_ts"`
	ExitTime  time.Time     `json:"exit_ts"`
	Direction State         `json:"direction"`
	EntryZ    float64       `json:"entry_z"`
	// ExitZ is nil when the closing bar had no defined z-score.
	ExitZ  *float64   `json:"exit_z"`
	Reason ExitReason `json:"reason"`
	// Forced marks a liquidation at the final bar.
	Forced bool `json:"forced"`

	BarsHeld    int     `json:"bars_held"`
	HedgeRatio  float64 `json:"hedge_ratio"`
	UnitsA      float64 `json:"units_a"`
	UnitsB      float64 `json:"units_b"`
	EntryPriceA float64 `json:"entry_price_a"`
	EntryPriceB float64 `json:"entry_price_b"`
	ExitPriceA  float64 `json:"exit_price_a"`
	ExitPriceB  float64 `json:"exit_price_b"`

	EntryNotional float64 `json:"entry_notional"`
	ExitNotional  float64 `json:"exit_notional"`
	GrossPnL      float64 `json:"gross_pnl"`
	Costs         float64 `json:"costs"`
	NetPnL        float64 `json:"net_pnl"`
}

// PnLPoint is the marked-to-market cumulative PnL at one bar.
type PnLPoint struct {
	Timestamp  time.Time `json:"ts"`
	Cumulative float64   `json:"cumulative_pnl"`
	State      State     `json:"state"`
}

// Result is the full output of simulating one pair.
type Result struct {
	Pair    domain.PairID `json:"pair"`
	Alpha   float64       `json:"alpha"`
	Beta    float64       `json:"beta"`
	Window  int           `json:"zscore_window"`
	Trades  []TradeRecord `json:"trades"`
	PnL     []PnLPoint    `json:"pnl"`
	Summary Summary       `json:"summary"`
}

// position is the open-trade state; it only lives inside Run.
type position struct {
	state         State
	entryIndex    int
	entryTime     time.Time
	entryZ        float64
	hedgeRatio    float64
	unitsA        float64
	unitsB        float64
	entryPriceA   float64
	entryPriceB   float64
	entryNotional float64
}

func (p *position) markToMarket(priceA, priceB float64) float64 {
	return p.unitsA*(priceA-p.entryPriceA) + p.unitsB*(priceB-p.entryPriceB)
}

func (p *position) notionalAt(priceA, priceB float64) float64 {
	return math.Abs(p.unitsA)*priceA + math.Abs(p.unitsB)*priceB
}
