package backtest

// Summary aggregates a trade journal and PnL series.
type Summary struct {
	Trades      int                `json:"trades"`
	Wins        int                `json:"wins"`
	WinRate     float64            `json:"win_rate"`
	GrossPnL    float64            `json:"gross_pnl"`
	Costs       float64            `json:"costs"`
	NetPnL      float64            `json:"net_pnl"`
	MaxDrawdown float64            `json:"max_drawdown"`
	ByReason    map[ExitReason]int `json:"by_reason"`
	Forced      bool               `json:"forced_liquidation"`
	Bars        int                `json:"bars"`
	// FlatWindows counts bars with no z-score because the rolling window had
	// zero variance. Those bars can only hold or close on time.
	FlatWindows  int    `json:"flat_windows"`
	SignalReason string `json:"signal_reason,omitempty"`
}

// Summarize computes summary statistics. Max drawdown is the largest fall of
// cumulative PnL from its running peak, with the peak starting at zero.
func Summarize(trades []TradeRecord, pnl []PnLPoint) Summary {
	s := Summary{
		ByReason: map[ExitReason]int{ReasonExit: 0, ReasonStop: 0, ReasonTimeStop: 0},
		Bars:     len(pnl),
	}
	for _, t := range trades {
		s.Trades++
		if t.NetPnL > 0 {
			s.Wins++
		}
		s.GrossPnL += t.GrossPnL
		s.Costs += t.Costs
		s.NetPnL += t.NetPnL
		s.ByReason[t.Reason]++
		s.Forced = s.Forced || t.Forced
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	s.MaxDrawdown = MaxDrawdown(pnl)
	return s
}

// MaxDrawdown returns the largest peak-to-trough decline of cumulative PnL.
func MaxDrawdown(pnl []PnLPoint) float64 {
	peak, dd := 0.0, 0.0
	for _, p := range pnl {
		if p.Cumulative > peak {
			peak = p.Cumulative
		}
		if d := peak - p.Cumulative; d > dd {
			dd = d
		}
	}
	return dd
}

// Portfolio totals per-pair summaries.
type Portfolio struct {
	Pairs    int                `json:"pairs"`
	Trades   int                `json:"trades"`
	Wins     int                `json:"wins"`
	WinRate  float64            `json:"win_rate"`
	GrossPnL float64            `json:"gross_pnl"`
	Costs    float64            `json:"costs"`
	NetPnL   float64            `json:"net_pnl"`
	ByReason map[ExitReason]int `json:"by_reason"`
}

// Aggregate sums results in the given order.
func Aggregate(results []Result) Portfolio {
	p := Portfolio{ByReason: map[ExitReason]int{ReasonExit: 0, ReasonStop: 0, ReasonTimeStop: 0}}
	for _, r := range results {
		p.Pairs++
		p.Trades += r.Summary.Trades
		p.Wins += r.Summary.Wins
		p.GrossPnL += r.Summary.GrossPnL
		p.Costs += r.Summary.Costs
		p.NetPnL += r.Summary.NetPnL
		for k, v := range r.Summary.ByReason {
			p.ByReason[k] += v
		}
	}
	if p.Trades > 0 {
		p.WinRate = float64(p.Wins) / float64(p.Trades)
	}
	return p
}
