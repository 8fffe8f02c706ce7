package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	dsvc "QuantPulse/internal/domain/service"
	"QuantPulse/pkg/logger"
	"QuantPulse/pkg/worker"
)

var (
	ErrRuleNotFound = errors.New("alert rule not found")
	ErrEmptyPair    = errors.New("pair is required")
)

// AlertCallback receives every notification. Returned errors and panics are
// logged and never stop the monitor.
type AlertCallback func(ctx context.Context, n models.AlertNotification) error

type AlertConfig struct {
	PollInterval time.Duration
	HistoryLimit int // 0 keeps every notification
	Timeframe    drepo.Timeframe
	Window       int
	Method       string
}

func (c AlertConfig) withDefaults() AlertConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.Timeframe == "" {
		c.Timeframe = drepo.TF1m
	}
	if c.Window < 2 {
		c.Window = 60
	}
	if c.Method == "" {
		c.Method = "OLS"
	}
	return c
}

// AlertEngine stores alert rules and evaluates them on a fixed interval.
type AlertEngine struct {
	prices   dsvc.PriceSource
	analyzer dsvc.PairAnalyzer
	cfg      AlertConfig
	metrics  drepo.Metrics
	log      *logger.Logger
	now      func() time.Time

	mu      sync.RWMutex
	rules   map[string]*models.AlertRule
	order   []string
	history []models.AlertNotification

	cbMu      sync.RWMutex
	callbacks []AlertCallback

	loop worker.Loop
}

func NewAlertEngine(prices dsvc.PriceSource, analyzer dsvc.PairAnalyzer, cfg AlertConfig, metrics drepo.Metrics, log *logger.Logger) *AlertEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &AlertEngine{
		prices:   prices,
		analyzer: analyzer,
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		log:      log.Component("alerts"),
		now:      time.Now,
		rules:    make(map[string]*models.AlertRule),
	}
}

// AddRule validates and stores a new active rule.
func (e *AlertEngine) AddRule(metric, pair, operator string, value float64) (models.AlertRule, error) {
	m, err := models.ParseMetric(metric)
	if err != nil {
		return models.AlertRule{}, err
	}
	op, err := models.ParseOperator(operator)
	if err != nil {
		return models.AlertRule{}, err
	}
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return models.AlertRule{}, ErrEmptyPair
	}

	r := &models.AlertRule{
		ID:        uuid.NewString(),
		Metric:    m,
		Pair:      pair,
		Operator:  op,
		Value:     value,
		Active:    true,
		CreatedAt: e.now().UTC(),
	}
	e.mu.Lock()
	e.rules[r.ID] = r
	e.order = append(e.order, r.ID)
	e.mu.Unlock()

	e.log.Info("alert rule added", logger.String("id", r.ID), logger.String("rule", r.Describe()))
	return *r, nil
}

// RemoveRule deletes a rule and reports whether it existed.
func (e *AlertEngine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	for i, rid := range e.order {
		if rid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.log.Info("alert rule removed", logger.String("id", id))
	return true
}

// Rule returns a copy of one rule.
func (e *AlertEngine) Rule(id string) (models.AlertRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return models.AlertRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return copyRule(r), nil
}

// SetActive toggles whether a rule is evaluated.
func (e *AlertEngine) SetActive(id string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.Active = active
	return nil
}

func copyRule(r *models.AlertRule) models.AlertRule {
	c := *r
	if r.TriggeredAt != nil {
		ts := *r.TriggeredAt
		c.TriggeredAt = &ts
	}
	return c
}

func (e *AlertEngine) snapshot(activeOnly bool) []models.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.AlertRule, 0, len(e.order))
	for _, id := range e.order {
		r := e.rules[id]
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, copyRule(r))
	}
	return out
}

// ListRules returns every rule in insertion order.
func (e *AlertEngine) ListRules() []models.AlertRule { return e.snapshot(false) }

// ActiveRules returns the active rules in insertion order.
func (e *AlertEngine) ActiveRules() []models.AlertRule { return e.snapshot(true) }

// Notifications returns the most recent limit notifications in arrival
// order, or all of them when limit <= 0.
func (e *AlertEngine) Notifications(limit int) []models.AlertNotification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h := e.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]models.AlertNotification(nil), h...)
}

func (e *AlertEngine) ClearNotifications() {
	e.mu.Lock()
	e.history = nil
	e.mu.Unlock()
	e.log.Info("alert history cleared")
}

func (e *AlertEngine) RegisterCallback(cb AlertCallback) {
	e.cbMu.Lock()
	e.callbacks = append(e.callbacks, cb)
	e.cbMu.Unlock()
}

// Start launches the monitor loop. Starting a running engine is a no-op.
func (e *AlertEngine) Start(ctx context.Context) {
	if !e.loop.Start(ctx, e.cfg.PollInterval, false, e.Evaluate) {
		e.log.Warn("alert monitoring already running")
		return
	}
	e.log.Info("alert monitoring started", logger.Duration("interval_ms", e.cfg.PollInterval))
}

// Stop cancels the monitor and waits for an in-flight pass. No callback runs
// after Stop returns.
func (e *AlertEngine) Stop() {
	if !e.loop.Running() {
		return
	}
	e.loop.Stop()
	e.log.Info("alert monitoring stopped")
}

func (e *AlertEngine) Running() bool { return e.loop.Running() }

// Evaluate checks every active rule once.
func (e *AlertEngine) Evaluate(ctx context.Context) {
	rules := e.ActiveRules()
	if len(rules) == 0 {
		return
	}
	memo := make(map[string]models.PairAnalytics)
	for _, r := range rules {
		if ctx.Err() != nil {
			return
		}
		actual, ok := e.resolve(ctx, r, memo)
		if !ok || !r.Operator.Evaluate(actual, r.Value) {
			continue
		}
		n, ok := e.trigger(r, actual)
		if !ok {
			continue
		}
		e.dispatch(ctx, n)
	}
}

// resolve reads the current value of the rule's metric. Pair analytics are
// computed at most once per pair per pass.
func (e *AlertEngine) resolve(ctx context.Context, r models.AlertRule, memo map[string]models.PairAnalytics) (float64, bool) {
	if r.Metric == models.MetricPrice {
		if e.prices == nil {
			return 0, false
		}
		return e.prices.LatestPrice(r.Pair)
	}
	if e.analyzer == nil {
		return 0, false
	}

	pa, ok := memo[r.Pair]
	if !ok {
		pa = e.analyzer.PairAnalytics(ctx, r.Pair, e.cfg.Timeframe, e.cfg.Window, e.cfg.Method)
		memo[r.Pair] = pa
	}
	if pa.HasError() {
		return 0, false
	}

	var series []models.MetricPoint
	switch r.Metric {
	case models.MetricZScore:
		series = pa.ZScore
	case models.MetricSpread:
		series = pa.Spread
	case models.MetricCorrelation:
		series = pa.RollingCorr
	}
	p, ok := models.Last(series)
	return p.Value, ok
}

// trigger records the notification and updates the stored rule. It reports
// false when the rule was removed or deactivated mid-pass.
func (e *AlertEngine) trigger(r models.AlertRule, actual float64) (models.AlertNotification, bool) {
	ts := e.now().UTC()
	n := models.AlertNotification{
		ID:             uuid.NewString(),
		RuleID:         r.ID,
		Message:        r.Describe(),
		Metric:         r.Metric,
		Pair:           r.Pair,
		ActualValue:    actual,
		ThresholdValue: r.Value,
		Timestamp:      ts,
	}

	e.mu.Lock()
	stored, ok := e.rules[r.ID]
	if !ok || !stored.Active {
		e.mu.Unlock()
		return n, false
	}
	stored.TriggeredAt = &ts
	stored.TriggerCount++
	e.history = append(e.history, n)
	if lim := e.cfg.HistoryLimit; lim > 0 && len(e.history) > lim {
		e.history = append([]models.AlertNotification(nil), e.history[len(e.history)-lim:]...)
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordAlertTriggered(string(r.Metric))
	}
	e.log.Info("alert triggered", logger.String("rule", n.Message), logger.Float64("actual", actual))
	return n, true
}

func (e *AlertEngine) dispatch(ctx context.Context, n models.AlertNotification) {
	e.cbMu.RLock()
	cbs := append([]AlertCallback(nil), e.callbacks...)
	e.cbMu.RUnlock()

	for i, cb := range cbs {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					e.log.Error("alert callback panicked", logger.Int("callback", i), logger.Any("panic", rec))
				}
			}()
			if err := cb(ctx, n); err != nil {
				e.log.Error("alert callback failed", logger.Int("callback", i), logger.Error(err))
			}
		}()
	}
}
