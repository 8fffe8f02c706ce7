package analytics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"QuantPulse/internal/domain/models"
)

// MinADFSamples is the smallest series the unit-root test is run on.
const MinADFSamples = 20

type olsFit struct {
	coef []float64
	se   []float64
	ssr  float64
	nobs int
}

// fitDesign solves the least-squares problem y = X b through the normal
// equations and reports coefficient standard errors.
func fitDesign(x *mat.Dense, y []float64) (olsFit, error) {
	n, k := x.Dims()
	if n <= k {
		return olsFit{}, ErrTooFewSamples
	}
	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) && math.IsInf(float64(cond), 1) {
			return olsFit{}, ErrSingularDesign
		}
		if !errors.As(err, &cond) {
			return olsFit{}, err
		}
		// ill-conditioned but invertible: keep going
	}

	yv := mat.NewVecDense(n, y)
	var xty, b mat.VecDense
	xty.MulVec(x.T(), yv)
	b.MulVec(&inv, &xty)

	var fitted, resid mat.VecDense
	fitted.MulVec(x, &b)
	resid.SubVec(yv, &fitted)
	ssr := mat.Dot(&resid, &resid)

	sigma2 := ssr / float64(n-k)
	fit := olsFit{coef: make([]float64, k), se: make([]float64, k), ssr: ssr, nobs: n}
	for j := 0; j < k; j++ {
		fit.coef[j] = b.AtVec(j)
		fit.se[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}
	return fit, nil
}

func (f olsFit) aic() float64 {
	n := float64(f.nobs)
	llf := -n / 2 * (math.Log(2*math.Pi) + math.Log(f.ssr/n) + 1)
	return -2*llf + 2*float64(len(f.coef))
}

// adfDesign builds the regression of diff(x)[t] on a constant, the level
// x[t] and `lags` lagged differences, for t = start..len(diff)-1.
// constFirst controls whether the constant is the first or last column.
func adfDesign(x, dx []float64, start, lags int, constFirst bool) (*mat.Dense, []float64) {
	nobs := len(dx) - start
	cols := lags + 2
	data := make([]float64, 0, nobs*cols)
	y := make([]float64, 0, nobs)
	for t := start; t < len(dx); t++ {
		if constFirst {
			data = append(data, 1)
		}
		data = append(data, x[t])
		for l := 1; l <= lags; l++ {
			data = append(data, dx[t-l])
		}
		if !constFirst {
			data = append(data, 1)
		}
		y = append(y, dx[t])
	}
	return mat.NewDense(nobs, cols, data), y
}

// ADF runs the augmented Dickey-Fuller test with a constant term, choosing
// the lag order by minimum AIC over 0..maxlag with
// maxlag = ceil(12*(n/100)^(1/4)) capped at n/2-2.
func ADF(series []float64) (models.ADFResult, int, error) {
	n := len(series)
	if n < MinADFSamples {
		return models.NeutralADF(), 0, nil
	}
	if !finite(series...) {
		return models.NeutralADF(), 0, fmt.Errorf("adf: series contains non-finite values")
	}

	maxlag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if c := n/2 - 2; c < maxlag {
		maxlag = c
	}
	if maxlag < 0 {
		return models.NeutralADF(), 0, ErrTooFewSamples
	}

	dx := make([]float64, n-1)
	for i := range dx {
		dx[i] = series[i+1] - series[i]
	}

	// lag selection on the common sample starting at maxlag
	full, y := adfDesign(series, dx, maxlag, maxlag, true)
	nobs, _ := full.Dims()
	bestAIC, bestLag := math.Inf(1), -1
	for k := 2; k <= maxlag+2; k++ {
		fit, err := fitDesign(full.Slice(0, nobs, 0, k).(*mat.Dense), y)
		if err != nil {
			continue
		}
		aic := fit.aic()
		if math.IsNaN(aic) {
			continue
		}
		if aic < bestAIC {
			bestAIC, bestLag = aic, k-2
		}
	}
	if bestLag < 0 {
		return models.NeutralADF(), 0, ErrSingularDesign
	}

	x, yy := adfDesign(series, dx, bestLag, bestLag, false)
	fit, err := fitDesign(x, yy)
	if err != nil {
		return models.NeutralADF(), bestLag, err
	}
	stat := fit.coef[0] / fit.se[0]
	if !finite(stat) {
		return models.NeutralADF(), bestLag, fmt.Errorf("adf: non-finite statistic")
	}
	return models.ADFResult{Stat: stat, PValue: MacKinnonP(stat)}, bestLag, nil
}

// MacKinnon (1994) approximate p-value surface for the constant-only
// Dickey-Fuller distribution with one series.
var (
	tauMax    = 2.74
	tauMin    = -18.83
	tauStar   = -1.61
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// MacKinnonP maps an ADF statistic to its approximate p-value.
func MacKinnonP(stat float64) float64 {
	switch {
	case stat > tauMax:
		return 1
	case stat < tauMin:
		return 0
	}
	coef := tauLargeP
	if stat <= tauStar {
		coef = tauSmallP
	}
	// Horner, highest power first
	v := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		v = v*stat + coef[i]
	}
	return distuv.UnitNormal.CDF(v)
}
