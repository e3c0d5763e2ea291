package backtest

import "math"

// Action is the single transition taken on a bar.
type Action int

const (
	Hold Action = iota
	EnterLong
	EnterShort
	CloseExit
	CloseStop
	CloseTimeStop
)

// Observation is what the state machine sees on one bar.
type Observation struct {
	Z    float64
	HasZ bool
	// BarsHeld counts bars since entry for an open position.
	BarsHeld int
	// CanEnter is false while entry spacing rules block new positions.
	CanEnter bool
}

// Decide applies the transition table:
//
//	FLAT  -> LONG_SPREAD   z <= -entry_z
//	FLAT  -> SHORT_SPREAD  z >= +entry_z
//	open  -> FLAT (STOP)      |z| >= stop_z
//	open  -> FLAT (TIME_STOP) bars held >= time_stop_bars, z not required
//	open  -> FLAT (EXIT)      exit rule of the configured mode
//
// Close priority is STOP > TIME_STOP > EXIT. No entry happens when |z| is
// already at or beyond stop_z.
func Decide(state State, obs Observation, p Params) Action {
	if state == Flat {
		if !obs.HasZ || !obs.CanEnter || math.Abs(obs.Z) >= p.StopZ {
			return Hold
		}
		switch {
		case obs.Z <= -p.EntryZ:
			return EnterLong
		case obs.Z >= p.EntryZ:
			return EnterShort
		}
		return Hold
	}

	if obs.HasZ && math.Abs(obs.Z) >= p.StopZ {
		return CloseStop
	}
	if obs.BarsHeld >= p.TimeStopBars {
		return CloseTimeStop
	}
	if obs.HasZ && exitSignal(state, obs.Z, p) {
		return CloseExit
	}
	return Hold
}

func exitSignal(state State, z float64, p Params) bool {
	if p.ExitMode == ExitZeroCross {
		if state == LongSpread {
			return z >= 0
		}
		return z <= 0
	}
	return math.Abs(z) <= p.ExitZ
}

func (a Action) reason() ExitReason {
	switch a {
	case CloseStop:
		return ReasonStop
	case CloseTimeStop:
		return ReasonTimeStop
	}
	return ReasonExit
}
