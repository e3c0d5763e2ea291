package domain

import (
	"fmt"
	"strings"
	"time"
)

// Bar is one daily observation for an instrument.
type Bar struct {
	Timestamp     time.Time `json:"ts"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adj_close"`
	Volume        float64   `json:"volume"`
}

// PriceSeries is the ordered price history of one instrument.
// Timestamps are UTC and strictly increasing.
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.Bars) }

// Validate checks ordering and uniqueness of timestamps.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		prev, cur := s.Bars[i-1].Timestamp, s.Bars[i].Timestamp
		if cur.Equal(prev) {
			return fmt.Errorf("%s: duplicate timestamp %s", s.Symbol, cur.Format(time.RFC3339))
		}
		if cur.Before(prev) {
			return fmt.Errorf("%s: timestamps not increasing at %s", s.Symbol, cur.Format(time.RFC3339))
		}
	}
	return nil
}

// PairID identifies an unordered instrument pair in canonical (min, max) order.
type PairID struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPairID canonicalizes two symbols so that NewPairID(x, y) == NewPairID(y, x).
func NewPairID(x, y string) PairID {
	if y < x {
		x, y = y, x
	}
	return PairID{A: x, B: y}
}

// String renders the pair as "A/B".
func (p PairID) String() string { return p.A + "/" + p.B }

// Less orders pair identifiers lexicographically by (A, B).
func (p PairID) Less(o PairID) bool {
	if p.A != o.A {
		return p.A < o.A
	}
	return p.B < o.B
}

// ParsePairID parses "A/B" into a canonical PairID.
func ParsePairID(s string) (PairID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return PairID{}, fmt.Errorf("invalid pair %q, want A/B", s)
	}
	if parts[0] == parts[1] {
		return PairID{}, fmt.Errorf("invalid pair %q: self-pair", s)
	}
	return NewPairID(parts[0], parts[1]), nil
}

// AlignedPoint is one shared timestamp with both closes.
type AlignedPoint struct {
	Timestamp time.Time `json:"ts"`
	CloseA    float64   `json:"close_a"`
	CloseB    float64   `json:"close_b"`
}

// AlignedPair holds two series reduced to the intersection of their timestamps.
type AlignedPair struct {
	Pair   PairID         `json:"pair"`
	Points []AlignedPoint `json:"points"`
}

// Len returns the number of aligned observations.
func (a AlignedPair) Len() int { return len(a.Points) }

// Tail returns the last n points (all of them when n exceeds the length).
func (a AlignedPair) Tail(n int) AlignedPair {
	if n <= 0 || n >= len(a.Points) {
		return a
	}
	return AlignedPair{Pair: a.Pair, Points: a.Points[len(a.Points)-n:]}
}

// ClosesA returns the A-leg closes.
func (a AlignedPair) ClosesA() []float64 {
	out := make([]float64, len(a.Points))
	for i, p := range a.Points {
		out[i] = p.CloseA
	}
	return out
}

// ClosesB returns the B-leg closes.
func (a AlignedPair) ClosesB() []float64 {
	out := make([]float64, len(a.Points))
	for i, p := range a.Points {
		out[i] = p.CloseB
	}
	return out
}

// SeriesPoint is a timestamped scalar, used for spreads.
type SeriesPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// Values extracts the scalar values of a series.
func Values(points []SeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
