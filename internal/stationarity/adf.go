package stationarity

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sawpanic/pairsarb/internal/domain"
)

// MacKinnon (1994) response-surface constants for the constant-only
// regression with a single integrated series.
const (
	tauMax  = 2.74
	tauMin  = -18.83
	tauStar = -1.61
)

var (
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// ADFResult is the outcome of an augmented Dickey-Fuller regression.
type ADFResult struct {
	Statistic float64
	PValue    float64
	Lags      int
	Obs       int
}

// ADF runs the augmented Dickey-Fuller test with a constant:
//
//	dy[t] = a + g*y[t-1] + sum_i d_i*dy[t-i] + e[t]
//
// The lag order is chosen by AIC over 0..maxLag on a common sample, then the
// chosen model is refit on the largest sample it admits. The statistic is the
// t-ratio of g.
func ADF(y []float64, maxLag int) (ADFResult, error) {
	if maxLag < 0 {
		maxLag = 0
	}
	n := len(y)
	// the common sample must leave residual degrees of freedom at maxLag
	need := 2*maxLag + 5
	if n < need {
		return ADFResult{}, &domain.InsufficientDataError{Stage: "adf", Have: n, Need: need}
	}

	// the t-ratio of g is scale free; standardizing keeps tiny spreads well conditioned
	mean, scale := stat.MeanStdDev(y, nil)
	if !(scale > 0) || math.IsInf(scale, 0) {
		return ADFResult{}, &domain.DegenerateRegressionError{Stage: "adf", Reason: "zero-variance series"}
	}
	z := make([]float64, n)
	for i, v := range y {
		z[i] = (v - mean) / scale
	}
	y = z

	dy := make([]float64, n-1)
	for i := 1; i < n; i++ {
		dy[i-1] = y[i] - y[i-1]
	}

	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		fit, err := adfRegression(y, dy, lag, maxLag)
		if err != nil {
			return ADFResult{}, err
		}
		if fit.aic < bestAIC {
			bestLag, bestAIC = lag, fit.aic
		}
	}

	fit, err := adfRegression(y, dy, bestLag, bestLag)
	if err != nil {
		return ADFResult{}, err
	}
	return ADFResult{
		Statistic: fit.tstat,
		PValue:    MacKinnonP(fit.tstat),
		Lags:      bestLag,
		Obs:       fit.obs,
	}, nil
}

type adfFit struct {
	tstat float64
	aic   float64
	obs   int
}

// adfRegression fits the ADF equation with lag augmentations, using rows
// starting at start+1 of dy so several lag orders can share one sample.
func adfRegression(y, dy []float64, lag, start int) (adfFit, error) {
	k := 2 + lag
	rows := len(dy) - start
	if rows <= k {
		return adfFit{}, &domain.InsufficientDataError{Stage: "adf", Have: rows, Need: k + 1}
	}

	x := mat.NewDense(rows, k, nil)
	resp := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + r // index into dy; dy[t] = y[t+1] - y[t]
		resp.SetVec(r, dy[t])
		x.Set(r, 0, 1)
		x.Set(r, 1, y[t])
		for i := 1; i <= lag; i++ {
			x.Set(r, 1+i, dy[t-i])
		}
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, resp); err != nil {
		return adfFit{}, &domain.DegenerateRegressionError{Stage: "adf", Reason: "singular design matrix"}
	}

	// (X'X)^-1 = R^-1 R^-T, so var(g) scales the squared norm of row 1 of R^-1
	var rFull mat.Dense
	qr.RTo(&rFull)
	rt := mat.NewTriDense(k, mat.Upper, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			rt.SetTri(i, j, rFull.At(i, j))
		}
	}
	var rInv mat.TriDense
	if err := rInv.InverseTri(rt); err != nil {
		return adfFit{}, &domain.DegenerateRegressionError{Stage: "adf", Reason: "singular design matrix"}
	}
	var gVar float64
	for j := 1; j < k; j++ {
		gVar += rInv.At(1, j) * rInv.At(1, j)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	var rss float64
	for r := 0; r < rows; r++ {
		e := resp.AtVec(r) - fitted.AtVec(r)
		rss += e * e
	}
	if rss == 0 {
		return adfFit{}, &domain.DegenerateRegressionError{Stage: "adf", Reason: "perfect fit"}
	}

	sigma2 := rss / float64(rows-k)
	se := math.Sqrt(sigma2 * gVar)
	m := float64(rows)
	return adfFit{
		tstat: beta.AtVec(1) / se,
		aic:   m*math.Log(rss/m) + 2*float64(k),
		obs:   rows,
	}, nil
}

// MacKinnonP maps an ADF t-statistic to an approximate p-value.
func MacKinnonP(tstat float64) float64 {
	switch {
	case math.IsNaN(tstat):
		return 1
	case tstat > tauMax:
		return 1
	case tstat < tauMin:
		return 0
	}
	coef := tauLargeP
	if tstat <= tauStar {
		coef = tauSmallP
	}
	var z float64
	for i := len(coef) - 1; i >= 0; i-- {
		z = z*tstat + coef[i]
	}
	return distuv.UnitNormal.CDF(z)
}
