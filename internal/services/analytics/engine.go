// Package analytics computes pair-trading statistics (hedge ratio, spread,
// z-score, rolling correlation, ADF) from resampled close prices.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	dsvc "QuantPulse/internal/domain/service"
	"QuantPulse/pkg/logger"
)

// Engine pulls close-price series from a SeriesSource and derives pair
// statistics from them. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	src     dsvc.SeriesSource
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

var _ dsvc.PairAnalyzer = (*Engine)(nil)

func NewEngine(src dsvc.SeriesSource, metrics drepo.Metrics, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{src: src, metrics: metrics, log: log.Component("analytics"), now: time.Now}
}

// HistoryLimit is how many candles are requested per symbol for window w.
func HistoryLimit(w int) int {
	return max(3*w, w+20)
}

// load fetches and aligns both series and returns the effective window.
func (e *Engine) load(ctx context.Context, symA, symB string, tf drepo.Timeframe, window int) (aligned, int, error) {
	if window < 2 {
		return aligned{}, 0, ErrInvalidWindow
	}
	limit := HistoryLimit(window)
	a, err := e.src.CloseSeries(ctx, symA, tf, limit)
	if err != nil {
		return aligned{}, 0, fmt.Errorf("load %s: %w", symA, err)
	}
	b, err := e.src.CloseSeries(ctx, symB, tf, limit)
	if err != nil {
		return aligned{}, 0, fmt.Errorf("load %s: %w", symB, err)
	}

	s := align(a, b)
	eff := effectiveWindow(window, s.len())
	if eff == 0 {
		return aligned{}, 0, nil
	}
	if eff < window {
		e.log.Debug("window shrunk to available history",
			logger.String("symbol_a", symA), logger.String("symbol_b", symB),
			logger.Int("window", window), logger.Int("effective", eff))
	}
	return s, eff, nil
}

// HedgeRatio returns the rolling hedge ratio of symA on symB, one point per
// full window, timestamped at the window's last point.
func (e *Engine) HedgeRatio(ctx context.Context, symA, symB string, tf drepo.Timeframe, window int, m Method) ([]models.MetricPoint, error) {
	s, eff, err := e.load(ctx, symA, symB, tf, window)
	if err != nil || eff == 0 {
		return nil, err
	}
	return hedgeRatios(s, eff, m)
}

// Spread returns price_A - beta*price_B at every hedge ratio point.
func (e *Engine) Spread(ctx context.Context, symA, symB string, tf drepo.Timeframe, window int, m Method) ([]models.MetricPoint, error) {
	s, eff, err := e.load(ctx, symA, symB, tf, window)
	if err != nil || eff == 0 {
		return nil, err
	}
	h, err := hedgeRatios(s, eff, m)
	if err != nil {
		return nil, err
	}
	return spreads(s, h), nil
}

// ZScore standardises the spread against its rolling mean and deviation.
// Points whose rolling deviation is zero are omitted.
func (e *Engine) ZScore(ctx context.Context, symA, symB string, tf drepo.Timeframe, window int, m Method) ([]models.MetricPoint, error) {
	s, eff, err := e.load(ctx, symA, symB, tf, window)
	if err != nil || eff == 0 {
		return nil, err
	}
	h, err := hedgeRatios(s, eff, m)
	if err != nil {
		return nil, err
	}
	sp := spreads(s, h)
	return zscores(sp, effectiveWindow(eff, len(sp))), nil
}

// RollingCorrelation is the rolling Pearson correlation of the raw prices.
func (e *Engine) RollingCorrelation(ctx context.Context, symA, symB string, tf drepo.Timeframe, window int) ([]models.MetricPoint, error) {
	s, eff, err := e.load(ctx, symA, symB, tf, window)
	if err != nil || eff == 0 {
		return nil, err
	}
	return rollingCorr(s, eff), nil
}

// ADFTest runs the unit-root test on a spread series. Series shorter than
// MinADFSamples, and tests that fail numerically, yield the neutral result.
func (e *Engine) ADFTest(spread []models.MetricPoint) models.ADFResult {
	res, lag, err := ADF(values(spread))
	if err != nil {
		e.log.Warn("adf test failed, assuming non-stationary",
			logger.Int("points", len(spread)), logger.Error(err))
		return models.NeutralADF()
	}
	e.log.Debug("adf test", logger.Float64("stat", res.Stat),
		logger.Float64("pvalue", res.PValue), logger.Int("lag", lag))
	return res
}

// SplitPair parses "A-B" into its two upper-cased symbols.
func SplitPair(pair string) (string, string, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(pair)), "-")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return a, b, nil
}

// PairAnalytics computes every statistic from a single aligned snapshot.
// It never fails: errors, including panics inside an estimator, are
// reported in the Error field. An unknown method label falls back to OLS.
func (e *Engine) PairAnalytics(ctx context.Context, pair string, tf drepo.Timeframe, window int, method string) (res models.PairAnalytics) {
	start := time.Now()
	m, err := ParseMethod(method)
	if err != nil {
		e.log.Warn("unknown regression method, using OLS", logger.String("method", method))
	}
	res = models.PairAnalytics{
		Pair:       strings.ToUpper(strings.TrimSpace(pair)),
		Timeframe:  string(tf),
		Window:     window,
		Method:     m.String(),
		ADF:        models.NeutralADF(),
		ComputedAt: e.now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			e.fail(&res, fmt.Errorf("panic: %v", r))
		}
		if e.metrics != nil {
			e.metrics.RecordLatency("pair_analytics", time.Since(start).Seconds())
		}
	}()

	symA, symB, err := SplitPair(pair)
	if err != nil {
		e.fail(&res, err)
		return res
	}
	res.SymbolA, res.SymbolB = symA, symB

	s, eff, err := e.load(ctx, symA, symB, tf, window)
	if err != nil {
		e.fail(&res, err)
		return res
	}
	if eff == 0 {
		return res
	}
	res.EffectiveWindow = eff

	hedge, err := hedgeRatios(s, eff, m)
	if err != nil {
		e.fail(&res, fmt.Errorf("hedge ratio (%s): %w", m, err))
		return res
	}
	res.HedgeRatio = hedge
	res.Spread = spreads(s, hedge)
	// the spread is eff-1 points shorter than the input, so the z-score
	// window shrinks to what the spread can supply
	res.ZScore = zscores(res.Spread, effectiveWindow(eff, len(res.Spread)))
	res.RollingCorr = rollingCorr(s, eff)
	res.ADF = e.ADFTest(res.Spread)
	res.Stationary = res.ADF.Stationary()
	return res
}

func (e *Engine) fail(res *models.PairAnalytics, err error) {
	res.Error = err.Error()
	res.HedgeRatio, res.Spread, res.ZScore, res.RollingCorr = nil, nil, nil, nil
	res.ADF = models.NeutralADF()
	res.Stationary = false
	if e.metrics != nil {
		e.metrics.RecordError("pair_analytics")
	}
	level := e.log.Error
	if errors.Is(err, ErrInvalidPair) || errors.Is(err, ErrInvalidWindow) {
		level = e.log.Warn
	}
	level("pair analytics failed", logger.String("pair", res.Pair), logger.Error(err))
}
