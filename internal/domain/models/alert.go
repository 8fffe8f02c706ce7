package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrUnsupportedMetric   = errors.New("unsupported metric")
	ErrUnsupportedOperator = errors.New("unsupported operator")
)

// Metric is the quantity an alert rule watches.
type Metric string

const (
	MetricPrice       Metric = "price"
	MetricZScore      Metric = "zscore"
	MetricSpread      Metric = "spread"
	MetricCorrelation Metric = "correlation"
)

func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MetricPrice, MetricZScore, MetricSpread, MetricCorrelation:
		return m, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedMetric, s)
}

// IsPairMetric reports whether the metric is derived from pair analytics.
func (m Metric) IsPairMetric() bool { return m != MetricPrice }

// Operator compares an observed value with a threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
)

// EqualTolerance is the absolute tolerance used by OpEqual.
const EqualTolerance = 1e-6

func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.TrimSpace(s))
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual:
		return op, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedOperator, s)
}

// Evaluate reports whether actual satisfies the operator against threshold.
func (o Operator) Evaluate(actual, threshold float64) bool {
	switch o {
	case OpGreater:
		return actual > threshold
	case OpLess:
		return actual < threshold
	case OpGreaterEqual:
		return actual >= threshold
	case OpLessEqual:
		return actual <= threshold
	case OpEqual:
		return math.Abs(actual-threshold) < EqualTolerance
	}
	return false
}

// AlertRule is a threshold condition on a metric of a symbol or pair.
type AlertRule struct {
	ID           string     `json:"id"`
	Metric       Metric     `json:"metric"`
	Pair         string     `json:"pair"`
	Operator     Operator   `json:"operator"`
	Value        float64    `json:"value"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	TriggeredAt  *time.Time `json:"triggered_at,omitempty"`
	TriggerCount int        `json:"trigger_count"`
}

// Describe renders the human readable condition used in notifications.
func (r AlertRule) Describe() string {
	return fmt.Sprintf("%s %s %v for %s", r.Metric, r.Operator, r.Value, r.Pair)
}

// AlertNotification records one rule trigger.
type AlertNotification struct {
	ID             string    `json:"id"`
	RuleID         string    `json:"rule_id"`
	Message        string    `json:"message"`
	Metric         Metric    `json:"metric"`
	Pair           string    `json:"pair"`
	ActualValue    float64   `json:"actual_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Timestamp      time.Time `json:"timestamp"`
}
