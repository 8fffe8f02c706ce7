package analytics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"QuantPulse/internal/domain/models"
)

// aligned holds two price series joined on identical timestamps.
type aligned struct {
	ts []time.Time
	a  []float64
	b  []float64
}

func (s aligned) len() int { return len(s.ts) }

// align inner-joins a and b on exact timestamps, keeping a's order.
func align(a, b []models.PricePoint) aligned {
	idx := make(map[int64]float64, len(b))
	for _, p := range b {
		idx[p.Timestamp.UnixNano()] = p.Close
	}
	var out aligned
	for _, p := range a {
		v, ok := idx[p.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		out.ts = append(out.ts, p.Timestamp)
		out.a = append(out.a, p.Close)
		out.b = append(out.b, v)
	}
	return out
}

// effectiveWindow shrinks w to the available length. It returns 0 when
// fewer than two aligned points exist.
func effectiveWindow(w, n int) int {
	if n < 2 {
		return 0
	}
	if w > n {
		return n
	}
	return w
}

func hedgeRatios(s aligned, eff int, m Method) ([]models.MetricPoint, error) {
	n := s.len()
	if eff < 2 || n < eff {
		return nil, nil
	}
	out := make([]models.MetricPoint, 0, n-eff+1)

	if m == Kalman {
		betas := kalmanBetas(s.b, s.a)
		for i := eff - 1; i < n; i++ {
			out = append(out, models.MetricPoint{Timestamp: s.ts[i], Value: betas[i]})
		}
		return out, nil
	}

	fit := fitOLS
	switch m {
	case Huber:
		fit = fitHuber
	case TheilSen:
		fit = fitTheilSen
	}
	for i := eff - 1; i < n; i++ {
		lo := i - eff + 1
		_, beta, err := fit(s.b[lo:i+1], s.a[lo:i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, models.MetricPoint{Timestamp: s.ts[i], Value: beta})
	}
	return out, nil
}

func spreads(s aligned, hedge []models.MetricPoint) []models.MetricPoint {
	pos := make(map[int64]int, s.len())
	for i, t := range s.ts {
		pos[t.UnixNano()] = i
	}
	out := make([]models.MetricPoint, 0, len(hedge))
	for _, h := range hedge {
		i, ok := pos[h.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		out = append(out, models.MetricPoint{Timestamp: h.Timestamp, Value: s.a[i] - h.Value*s.b[i]})
	}
	return out
}

// zeroStd reports a rolling deviation too small to distinguish from a
// constant window.
func zeroStd(std, mean float64) bool {
	return std == 0 || math.IsNaN(std) || std <= 1e-12*math.Max(1, math.Abs(mean))
}

func zscores(spread []models.MetricPoint, eff int) []models.MetricPoint {
	if len(spread) < 2 || eff < 2 || len(spread) < eff {
		return nil
	}
	vals := make([]float64, len(spread))
	for i, p := range spread {
		vals[i] = p.Value
	}
	out := make([]models.MetricPoint, 0, len(spread)-eff+1)
	for i := eff - 1; i < len(vals); i++ {
		mean, std := stat.MeanStdDev(vals[i-eff+1:i+1], nil)
		if zeroStd(std, mean) {
			continue
		}
		out = append(out, models.MetricPoint{Timestamp: spread[i].Timestamp, Value: (vals[i] - mean) / std})
	}
	return out
}

func rollingCorr(s aligned, eff int) []models.MetricPoint {
	n := s.len()
	if eff < 2 || n < eff {
		return nil
	}
	out := make([]models.MetricPoint, 0, n-eff+1)
	for i := eff - 1; i < n; i++ {
		lo := i - eff + 1
		c := stat.Correlation(s.a[lo:i+1], s.b[lo:i+1], nil)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		out = append(out, models.MetricPoint{Timestamp: s.ts[i], Value: c})
	}
	return out
}

func values(ps []models.MetricPoint) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Value
	}
	return out
}
