// Package backtest simulates the z-score entry/exit strategy on one pair.
package backtest

import (
	"errors"
	"math"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/hedge"
	"github.com/sawpanic/pairsarb/internal/market"
	"github.com/sawpanic/pairsarb/internal/signal"
)

// Input is everything one simulation consumes. Points and Z must share
// timestamps; bars without a z-score are still marked to market.
type Input struct {
	Pair   domain.PairID
	Points []domain.AlignedPoint
	Z      signal.Series
	Alpha  float64
	Beta   float64
}

// Prepare refits the hedge relation over the whole aligned history and
// computes the z-score series the simulator trades on.
func Prepare(ap domain.AlignedPair, minRegressionObs, window int) (Input, error) {
	rel, err := hedge.Estimate(ap, minRegressionObs)
	if err != nil {
		return Input{}, err
	}
	z, err := signal.ZScores(rel.Spread, window)
	if err != nil {
		return Input{}, err
	}
	return Input{
		Pair:   ap.Pair,
		Points: hedge.Clean(ap).Points,
		Z:      z,
		Alpha:  rel.Alpha,
		Beta:   rel.Beta,
	}, nil
}

// Run walks the bars in order. Each bar's decision uses only that bar's z-score
// and closes. At most one transition happens per bar, so a position closed on
// a bar is never reopened on the same bar.
func Run(in Input, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, &domain.ConfigurationError{Field: "thresholds", Reason: err.Error()}
	}
	if len(in.Points) == 0 {
		return Result{}, &domain.InsufficientDataError{Stage: "backtest", Have: 0, Need: 1}
	}

	res := Result{
		Pair:   in.Pair,
		Alpha:  in.Alpha,
		Beta:   in.Beta,
		Window: in.Z.Window,
		Trades: []TradeRecord{},
		PnL:    make([]PnLPoint, 0, len(in.Points)),
	}

	var (
		pos        *position
		realized   float64
		lastEntry  = math.MinInt32
		lastExit   = math.MinInt32
		costRate   = p.CostBps / 10_000
		coolOff    = max(p.CoolOffBars, 1)
		entrySpace = p.MinBarsBetweenEntries
	)

	closePos := func(i int, bar domain.AlignedPoint, z *float64, reason ExitReason, forced bool) {
		gross := pos.markToMarket(bar.CloseA, bar.CloseB)
		exitNotional := pos.notionalAt(bar.CloseA, bar.CloseB)
		costs := costRate * (pos.entryNotional + exitNotional)
		tr := TradeRecord{
			Pair:          in.Pair,
			EntryTime:     pos.entryTime,
			ExitTime:      bar.Timestamp,
			Direction:     pos.state,
			EntryZ:        pos.entryZ,
			ExitZ:         z,
			Reason:        reason,
			Forced:        forced,
			BarsHeld:      i - pos.entryIndex,
			HedgeRatio:    pos.hedgeRatio,
			UnitsA:        pos.unitsA,
			UnitsB:        pos.unitsB,
			EntryPriceA:   pos.entryPriceA,
			EntryPriceB:   pos.entryPriceB,
			ExitPriceA:    bar.CloseA,
			ExitPriceB:    bar.CloseB,
			EntryNotional: pos.entryNotional,
			ExitNotional:  exitNotional,
			GrossPnL:      gross,
			Costs:         costs,
			NetPnL:        gross - costs,
		}
		res.Trades = append(res.Trades, tr)
		realized += tr.NetPnL
		lastExit = i
		pos = nil
	}

	for i, bar := range in.Points {
		last := i == len(in.Points)-1
		zp, hasZ := in.Z.At(bar.Timestamp)
		state := Flat
		held := 0
		if pos != nil {
			state = pos.state
			held = i - pos.entryIndex
		}

		obs := Observation{
			Z:        zp.Z,
			HasZ:     hasZ,
			BarsHeld: held,
			CanEnter: !last && i-lastExit >= coolOff && i-lastEntry >= entrySpace && tradable(bar),
		}

		switch act := Decide(state, obs, p); act {
		case EnterLong, EnterShort:
			dir := LongSpread
			if act == EnterShort {
				dir = ShortSpread
			}
			pos = open(i, bar, dir, zp.Z, in.Beta, p)
			lastEntry = i
		case CloseExit, CloseStop, CloseTimeStop:
			closePos(i, bar, zRef(zp, hasZ), act.reason(), false)
		}

		if last && pos != nil {
			closePos(i, bar, zRef(zp, hasZ), ReasonExit, true)
		}

		cum := realized
		st := Flat
		if pos != nil {
			cum += pos.markToMarket(bar.CloseA, bar.CloseB) - costRate*pos.entryNotional
			st = pos.state
		}
		res.PnL = append(res.PnL, PnLPoint{Timestamp: bar.Timestamp, Cumulative: cum, State: st})
	}

	res.Summary = Summarize(res.Trades, res.PnL)
	if err := in.Z.Degenerate(); err != nil {
		var dse *domain.DegenerateSignalError
		if errors.As(err, &dse) {
			res.Summary.FlatWindows = dse.Excluded
		}
		res.Summary.SignalReason = domain.ReasonCode(err)
	}
	return res, nil
}

// open sizes a new position. Leg A gets floor(budget/priceA) units (at least
// one); leg B gets round(|beta| * unitsA) units (at least one) on the opposite
// side of A, adjusted for the sign of beta.
func open(i int, bar domain.AlignedPoint, dir State, z, beta float64, p Params) *position {
	budget := p.Capital * p.PerTradePct
	nA := math.Max(1, math.Floor(budget/bar.CloseA))
	nB := math.Max(1, math.Round(math.Abs(beta)*nA))
	sign := 1.0
	if beta < 0 {
		sign = -1
	}
	d := dir.direction()
	pos := &position{
		state:       dir,
		entryIndex:  i,
		entryTime:   bar.Timestamp,
		entryZ:      z,
		hedgeRatio:  beta,
		unitsA:      d * nA,
		unitsB:      -d * sign * nB,
		entryPriceA: bar.CloseA,
		entryPriceB: bar.CloseB,
	}
	pos.entryNotional = pos.notionalAt(bar.CloseA, bar.CloseB)
	return pos
}

func tradable(bar domain.AlignedPoint) bool {
	return market.Finite(bar.CloseA) && market.Finite(bar.CloseB) && bar.CloseA > 0 && bar.CloseB > 0
}

func zRef(p signal.Point, ok bool) *float64 {
	if !ok {
		return nil
	}
	v := p.Z
	return &v
}
