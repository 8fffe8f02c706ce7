// Package resample turns buffered ticks into OHLCV candles and caches the
// result per (symbol, timeframe).
package resample

import (
	"math"
	"sort"
	"strings"
	"time"

	"QuantPulse/internal/domain/models"
)

type bucket struct {
	start  time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

// OHLCV buckets ticks into fixed windows of width d. Open and close follow
// the order in which ticks appear in the input. Buckets without ticks are
// omitted. Zero prices count as missing and are filled forward, then
// backward, from neighbouring candles; high and low are then widened to
// cover open and close.
func OHLCV(ticks []models.Tick, d time.Duration) []models.Candle {
	if len(ticks) == 0 || d <= 0 {
		return nil
	}

	index := make(map[int64]*bucket)
	order := make([]*bucket, 0)
	for _, t := range ticks {
		start := t.Timestamp.UTC().Truncate(d)
		k := start.UnixNano()
		b, ok := index[k]
		if !ok {
			b = &bucket{start: start, open: t.Price, high: t.Price, low: t.Price}
			index[k] = b
			order = append(order, b)
		}
		if t.Price > b.high {
			b.high = t.Price
		}
		if t.Price < b.low {
			b.low = t.Price
		}
		b.close = t.Price
		if !math.IsNaN(t.Quantity) {
			b.volume += t.Quantity
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].start.Before(order[j].start) })

	n := len(order)
	cols := [4][]float64{make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)}
	for i, b := range order {
		for c, v := range [4]float64{b.open, b.high, b.low, b.close} {
			if v == 0 {
				v = math.NaN()
			}
			cols[c][i] = v
		}
	}
	for c := range cols {
		fillForward(cols[c])
		fillBackward(cols[c])
	}

	out := make([]models.Candle, 0, n)
	for i, b := range order {
		o, h, l, cl := cols[0][i], cols[1][i], cols[2][i], cols[3][i]
		if math.IsNaN(o) || math.IsNaN(h) || math.IsNaN(l) || math.IsNaN(cl) {
			continue
		}
		out = append(out, models.Candle{
			Timestamp: b.start,
			Open:      o,
			High:      math.Max(math.Max(o, h), math.Max(l, cl)),
			Low:       math.Min(math.Min(o, h), math.Min(l, cl)),
			Close:     cl,
			Volume:    b.volume,
		})
	}
	return out
}

func fillForward(xs []float64) {
	last := math.NaN()
	for i, v := range xs {
		if math.IsNaN(v) {
			xs[i] = last
			continue
		}
		last = v
	}
}

func fillBackward(xs []float64) {
	next := math.NaN()
	for i := len(xs) - 1; i >= 0; i-- {
		if math.IsNaN(xs[i]) {
			xs[i] = next
			continue
		}
		next = xs[i]
	}
}

// Filter applies the caller-side time range and limit to candles, returning
// a new slice. Limit keeps the most recent candles.
func Filter(candles []models.Candle, from, to time.Time, limit int) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && c.Timestamp.After(to) {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
