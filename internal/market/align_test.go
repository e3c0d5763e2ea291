package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/domain"
)

func series(symbol string, days []int, closes []float64) domain.PriceSeries {
	s := domain.PriceSeries{Symbol: symbol}
	for i, d := range days {
		s.Bars = append(s.Bars, domain.Bar{
			Timestamp: time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC),
			Close:     closes[i],
		})
	}
	return s
}

func TestAlignInnerJoin(t *testing.T) {
	a := series("QQQ", []int{1, 2, 4, 5, 7}, []float64{10, 11, 12, 13, 14})
	b := series("SPY", []int{2, 3, 4, 7, 8}, []float64{20, 21, 22, 23, 24})

	ap, err := Align(a, b, PriceCloseOnly, 1)
	require.NoError(t, err)

	require.Equal(t, 3, ap.Len())
	assert.Equal(t, domain.PairID{A: "QQQ", B: "SPY"}, ap.Pair)
	assert.Equal(t, []float64{11, 12, 14}, ap.ClosesA())
	assert.Equal(t, []float64{20, 22, 23}, ap.ClosesB())
	for i := 1; i < ap.Len(); i++ {
		assert.True(t, ap.Points[i].Timestamp.After(ap.Points[i-1].Timestamp))
	}
}

func TestAlignCanonicalOrder(t *testing.T) {
	a := series("SPY", []int{1, 2}, []float64{1, 2})
	b := series("IVV", []int{1, 2}, []float64{3, 4})

	ap, err := Align(a, b, PriceCloseOnly, 1)
	require.NoError(t, err)
	assert.Equal(t, "IVV", ap.Pair.A)
	assert.Equal(t, []float64{3, 4}, ap.ClosesA())
}

func TestAlignInsufficient(t *testing.T) {
	a := series("A", []int{1, 2, 3}, []float64{1, 2, 3})
	b := series("B", []int{4, 5, 6}, []float64{1, 2, 3})

	_, err := Align(a, b, PriceCloseOnly, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	c := series("C", []int{1, 2, 3}, []float64{1, 2, 3})
	_, err = Align(a, c, PriceCloseOnly, 5)
	var ide *domain.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 3, ide.Have)
	assert.Equal(t, 5, ide.Need)
}

func TestPriceOfPolicy(t *testing.T) {
	bar := domain.Bar{Close: 100, AdjustedClose: 98}
	assert.Equal(t, 98.0, PriceOf(bar, PriceBest))
	assert.Equal(t, 100.0, PriceOf(bar, PriceCloseOnly))
	assert.Equal(t, 100.0, PriceOf(domain.Bar{Close: 100}, PriceBest))
}
