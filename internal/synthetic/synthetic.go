// Package synthetic generates deterministic price and spread fixtures.
package synthetic

import (
	"time"

	"github.com/sawpanic/pairsarb/internal/domain"
)

// Epoch is the first bar of generated series.
var Epoch = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// Shocks returns n values in [-0.5, 0.5) from a linear congruential generator.
// The same seed always yields the same sequence.
func Shocks(seed uint64, n int) []float64 {
	out := make([]float64, n)
	x := seed % (1 << 31)
	for i := range out {
		x = (1103515245*x + 12345) % (1 << 31)
		out[i] = float64(x)/float64(1<<31) - 0.5
	}
	return out
}

// RandomWalk starts at start and adds scale*shock each step.
func RandomWalk(seed uint64, n int, start, scale float64) []float64 {
	e := Shocks(seed, n)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	out[0] = start
	for t := 1; t < n; t++ {
		out[t] = out[t-1] + scale*e[t]
	}
	return out
}

// AR1 returns s[t] = phi*s[t-1] + scale*shock[t], starting at zero.
func AR1(seed uint64, n int, phi, scale float64) []float64 {
	e := Shocks(seed, n)
	out := make([]float64, n)
	for t := 1; t < n; t++ {
		out[t] = phi*out[t-1] + scale*e[t]
	}
	return out
}

// Collinear returns a random walk a and b = 2a + small AR(1) noise.
func Collinear(n int) (a, b []float64) {
	return CollinearNoise(n, 0.02)
}

// CollinearNoise is Collinear with the AR(1) noise scaled by amp.
func CollinearNoise(n int, amp float64) (a, b []float64) {
	a = RandomWalk(7, n, 100, 1)
	noise := AR1(99, n, 0.5, amp)
	b = make([]float64, n)
	for i := range a {
		b[i] = 2*a[i] + noise[i]
	}
	return a, b
}

// Series wraps closes into daily bars starting at Epoch.
func Series(symbol string, closes []float64) domain.PriceSeries {
	return SeriesFrom(symbol, Epoch, closes)
}

// SeriesFrom wraps closes into daily bars starting at start.
func SeriesFrom(symbol string, start time.Time, closes []float64) domain.PriceSeries {
	s := domain.PriceSeries{Symbol: symbol, Bars: make([]domain.Bar, len(closes))}
	for i, c := range closes {
		s.Bars[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1_000_000,
		}
	}
	return s
}

// Timestamps returns n consecutive daily timestamps from Epoch.
func Timestamps(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = Epoch.AddDate(0, 0, i)
	}
	return out
}
