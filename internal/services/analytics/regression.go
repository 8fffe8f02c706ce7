package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Every estimator fits y = alpha + beta*x. When x has no variance the slope
// is undefined and beta is reported as 0 with alpha = mean(y).

func flat(x []float64) bool {
	return len(x) < 2 || floats.Max(x) == floats.Min(x)
}

func fitOLS(x, y []float64) (alpha, beta float64, err error) {
	if flat(x) {
		return stat.Mean(y, nil), 0, nil
	}
	alpha, beta = stat.LinearRegression(x, y, nil, false)
	return alpha, beta, nil
}

const (
	huberEpsilon = 1.35
	huberMaxIter = 100
	huberTol     = 1e-8
	madNormal    = 0.6744897501960817
)

// fitHuber runs iteratively reweighted least squares with Huber weights and
// a MAD scale estimate re-computed every iteration.
func fitHuber(x, y []float64) (alpha, beta float64, err error) {
	if flat(x) {
		return stat.Mean(y, nil), 0, nil
	}
	alpha, beta = stat.LinearRegression(x, y, nil, false)

	resid := make([]float64, len(x))
	w := make([]float64, len(x))
	for iter := 0; iter < huberMaxIter; iter++ {
		for i := range x {
			resid[i] = y[i] - alpha - beta*x[i]
		}
		scale := mad(resid) / madNormal
		if scale == 0 || math.IsNaN(scale) {
			return alpha, beta, nil
		}
		for i, r := range resid {
			u := math.Abs(r / scale)
			if u <= huberEpsilon {
				w[i] = 1
			} else {
				w[i] = huberEpsilon / u
			}
		}
		a, b := stat.LinearRegression(x, y, w, false)
		if math.IsNaN(a) || math.IsNaN(b) {
			return alpha, beta, ErrNotConverged
		}
		done := math.Abs(b-beta) <= huberTol*(1+math.Abs(beta)) &&
			math.Abs(a-alpha) <= huberTol*(1+math.Abs(alpha))
		alpha, beta = a, b
		if done {
			return alpha, beta, nil
		}
	}
	return alpha, beta, ErrNotConverged
}

// fitTheilSen takes the median of all pairwise slopes and the median
// intercept given that slope.
func fitTheilSen(x, y []float64) (alpha, beta float64, err error) {
	slopes := make([]float64, 0, len(x)*(len(x)-1)/2)
	for i := 0; i < len(x); i++ {
		for j := i + 1; j < len(x); j++ {
			dx := x[j] - x[i]
			if dx == 0 {
				continue
			}
			slopes = append(slopes, (y[j]-y[i])/dx)
		}
	}
	if len(slopes) == 0 {
		return stat.Mean(y, nil), 0, nil
	}
	beta = median(slopes)

	intercepts := make([]float64, len(x))
	for i := range x {
		intercepts[i] = y[i] - beta*x[i]
	}
	return median(intercepts), beta, nil
}

// median sorts xs in place.
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

func mad(xs []float64) float64 {
	c := append([]float64(nil), xs...)
	m := median(c)
	for i := range c {
		c[i] = math.Abs(c[i] - m)
	}
	return median(c)
}

const (
	kalmanDelta = 1e-4
	kalmanVe    = 1e-3
	kalmanP0    = 1e4
)

// kalmanBetas filters the state [beta, alpha] as a random walk observed
// through y = beta*x + alpha + noise and returns the posterior beta after
// every observation.
func kalmanBetas(x, y []float64) []float64 {
	vw := kalmanDelta / (1 - kalmanDelta)
	theta := [2]float64{0, 0}
	p := [2][2]float64{{kalmanP0, 0}, {0, kalmanP0}}

	out := make([]float64, len(x))
	for t := range x {
		// predict
		r := p
		r[0][0] += vw
		r[1][1] += vw

		h := [2]float64{x[t], 1}
		e := y[t] - (h[0]*theta[0] + h[1]*theta[1])

		// R Hᵀ
		rh := [2]float64{
			r[0][0]*h[0] + r[0][1]*h[1],
			r[1][0]*h[0] + r[1][1]*h[1],
		}
		q := h[0]*rh[0] + h[1]*rh[1] + kalmanVe
		k := [2]float64{rh[0] / q, rh[1] / q}

		theta[0] += k[0] * e
		theta[1] += k[1] * e

		// P = R - K H R, where H R = (R Hᵀ)ᵀ for symmetric R
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				p[i][j] = r[i][j] - k[i]*rh[j]
			}
		}
		out[t] = theta[0]
	}
	return out
}

// finite reports whether every value is a real number.
func finite(xs ...float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
