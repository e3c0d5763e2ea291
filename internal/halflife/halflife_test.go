package halflife

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pairsarb/internal/domain"
)

// ar1 simulates s[t] = phi*s[t-1] + e[t] with LCG shocks in [-0.5, 0.5).
func ar1(phi float64, n int) []float64 {
	out := make([]float64, n)
	out[0] = 1
	x := uint64(12345)
	for t := 1; t < n; t++ {
		x = (1103515245*x + 12345) % (1 << 31)
		out[t] = phi*out[t-1] + (float64(x)/float64(1<<31) - 0.5)
	}
	return out
}

func TestFitMeanReverting(t *testing.T) {
	est, err := Fit(ar1(0.8, 400), 20)
	require.NoError(t, err)
	assert.True(t, est.Defined())
	assert.InDelta(t, 0.8, est.Phi, 0.05)
	assert.Greater(t, est.HalfLife, 0.0)
	assert.InDelta(t, FromPhi(est.Phi), est.HalfLife, 1e-12)
}

func TestFromPhi(t *testing.T) {
	tests := []struct {
		phi  float64
		want float64
	}{
		{0.5, 1},
		{0.25, 0.5},
		{0, math.Inf(1)},
		{-0.3, math.Inf(1)},
		{1, math.Inf(1)},
		{1.2, math.Inf(1)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromPhi(tt.phi), "phi=%v", tt.phi)
	}
}

func TestFitExplosiveIsUndefined(t *testing.T) {
	growth := make([]float64, 50)
	v := 1.0
	for i := range growth {
		growth[i] = v
		v *= 1.1
	}
	est, err := Fit(growth, 20)
	require.NoError(t, err)
	assert.Greater(t, est.Phi, 1.0)
	assert.False(t, est.Defined())
	assert.True(t, math.IsInf(est.HalfLife, 1))
}

func TestFitAlternatingIsUndefined(t *testing.T) {
	alt := make([]float64, 40)
	for i := range alt {
		alt[i] = float64(1 - 2*(i%2))
	}
	est, err := Fit(alt, 20)
	require.NoError(t, err)
	assert.Less(t, est.Phi, 0.0)
	assert.False(t, est.Defined())
}

func TestFitConstantSpread(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 4.2
	}
	est, err := Fit(flat, 20)
	require.NoError(t, err)
	assert.False(t, est.Defined())
}

func TestFitInsufficient(t *testing.T) {
	vals := []float64{1, 2, math.NaN(), 3, math.Inf(-1), 4}
	_, err := Fit(vals, 5)
	var ide *domain.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 3, ide.Have)
	assert.Equal(t, 5, ide.Need)

	_, err = Fit(nil, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
