package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/domain"
	"github.com/sawpanic/pairsarb/internal/synthetic"
)

func spreadOf(values ...float64) []domain.SeriesPoint {
	ts := synthetic.Timestamps(len(values))
	out := make([]domain.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = domain.SeriesPoint{Timestamp: ts[i], Value: v}
	}
	return out
}

func TestZScoresKnownValues(t *testing.T) {
	s, err := ZScores(spreadOf(1, 2, 3, 4, 5, 1), 3)
	require.NoError(t, err)
	require.NoError(t, s.Degenerate())

	require.Len(t, s.Points, 4)
	require.Len(t, s.Excluded, 2)
	assert.Equal(t, ExcludedWarmup, s.Excluded[0].Reason)

	assert.InDelta(t, 1.0, s.Points[0].Z, 1e-12)
	assert.InDelta(t, 2.0, s.Points[0].Mean, 1e-12)
	assert.InDelta(t, 1.0, s.Points[0].Std, 1e-12)
	assert.InDelta(t, 1.0, s.Points[2].Z, 1e-12)

	// window (4, 5, 1): mean 10/3, sample std sqrt(13/3)
	want := (1 - 10.0/3) / math.Sqrt(13.0/3)
	assert.InDelta(t, want, s.Points[3].Z, 1e-12)
}

func TestZScoresConstantSpread(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 0.1
	}
	s, err := ZScores(spreadOf(vals...), 10)
	require.NoError(t, err)

	assert.Empty(t, s.Points)
	assert.Len(t, s.Excluded, 30)

	var dse *domain.DegenerateSignalError
	require.ErrorAs(t, s.Degenerate(), &dse)
	assert.Equal(t, 21, dse.Excluded)
	assert.ErrorIs(t, s.Degenerate(), domain.ErrDegenerateSignal)
}

func TestZScoresFlatRegionThenMovement(t *testing.T) {
	vals := []float64{2, 2, 2, 2, 3, 1, 2, 4}
	s, err := ZScores(spreadOf(vals...), 3)
	require.NoError(t, err)

	for _, p := range s.Points {
		assert.False(t, math.IsNaN(p.Z) || math.IsInf(p.Z, 0))
	}
	assert.Len(t, s.Points, 4)
	assert.Error(t, s.Degenerate())
}

func TestZScoresSkipsInvalidWindows(t *testing.T) {
	s, err := ZScores(spreadOf(1, 2, math.NaN(), 4, 5, 6, 7), 3)
	require.NoError(t, err)
	for _, p := range s.Points {
		assert.False(t, math.IsNaN(p.Z))
	}
	assert.Len(t, s.Points, 2)
	assert.NoError(t, s.Degenerate())
}

func TestZScoresRejectsWindow(t *testing.T) {
	_, err := ZScores(spreadOf(1, 2, 3), 1)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAt(t *testing.T) {
	sp := spreadOf(1, 2, 3, 4)
	s, err := ZScores(sp, 3)
	require.NoError(t, err)

	_, ok := s.At(sp[0].Timestamp)
	assert.False(t, ok)
	p, ok := s.At(sp[3].Timestamp)
	require.True(t, ok)
	assert.Equal(t, 4.0, p.Spread)
}

func TestWindow(t *testing.T) {
	assert.Equal(t, 20, Window(20, 0, 50))
	assert.Equal(t, 20, Window(20, 2, 4))
	assert.Equal(t, 31, Window(20, 2, 15.2))
	assert.Equal(t, 20, Window(20, 2, math.Inf(1)))
}
