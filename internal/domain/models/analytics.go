package models

import "time"

// StationaryPValue is the p-value cut-off below which a spread is treated as
// mean-reverting.
const StationaryPValue = 0.05

// ADFResult is the outcome of an augmented Dickey-Fuller test.
type ADFResult struct {
	Stat   float64 `json:"stat"`
	PValue float64 `json:"pvalue"`
}

func (r ADFResult) Stationary() bool { return r.PValue < StationaryPValue }

// NeutralADF is returned when the test cannot be run.
func NeutralADF() ADFResult { return ADFResult{Stat: 0, PValue: 1} }

// PairAnalytics aggregates every pair statistic computed from one aligned
// snapshot of both price series. A non-empty Error means the computation
// failed; an empty result without Error means there was no data yet.
type PairAnalytics struct {
	Pair            string        `json:"pair"`
	SymbolA         string        `json:"symbol_a"`
	SymbolB         string        `json:"symbol_b"`
	Timeframe       string        `json:"timeframe"`
	Window          int           `json:"window"`
	EffectiveWindow int           `json:"effective_window"`
	Method          string        `json:"method"`
	HedgeRatio      []MetricPoint `json:"hedge_ratio"`
	Spread          []MetricPoint `json:"spread"`
	ZScore          []MetricPoint `json:"zscore"`
	RollingCorr     []MetricPoint `json:"rolling_correlation"`
	ADF             ADFResult     `json:"adf"`
	Stationary      bool          `json:"is_stationary"`
	Error           string        `json:"error,omitempty"`
	ComputedAt      time.Time     `json:"computed_at"`
}

func (p *PairAnalytics) HasError() bool { return p.Error != "" }

// Empty reports a result with no series and no error.
func (p *PairAnalytics) Empty() bool {
	return !p.HasError() && len(p.HedgeRatio) == 0 && len(p.Spread) == 0 &&
		len(p.ZScore) == 0 && len(p.RollingCorr) == 0
}

// Last returns the final point of a series, if any.
func Last(series []MetricPoint) (MetricPoint, bool) {
	if len(series) == 0 {
		return MetricPoint{}, false
	}
	return series[len(series)-1], true
}
