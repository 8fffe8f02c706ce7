package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksReceived   *prometheus.CounterVec
	recordsStored   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	reconnects      *prometheus.CounterVec
	connState       *prometheus.GaugeVec
	alertsTriggered *prometheus.CounterVec
	bufferSize      *prometheus.GaugeVec
}

// New creates a Prometheus metrics recorder registered on reg.
// A nil reg registers on the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		ticksReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_ticks_received_total",
				Help: "Total number of trade ticks received from the upstream feed",
			},
			[]string{"symbol"},
		),
		recordsStored: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_records_stored_total",
				Help: "Total number of ticks written to the recording backend",
			},
			[]string{"backend"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_stream_reconnects_total",
				Help: "Total number of upstream reconnect attempts",
			},
			[]string{"symbol"},
		),
		connState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantpulse_stream_state",
				Help: "Upstream connection state per symbol (0=disconnected 1=connecting 2=connected 3=backoff)",
			},
			[]string{"symbol"},
		),
		alertsTriggered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantpulse_alerts_triggered_total",
				Help: "Total number of alert notifications emitted",
			},
			[]string{"metric"},
		),
		bufferSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantpulse_buffer_size",
				Help: "Number of ticks currently buffered per symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordTick records a received trade tick.
func (r *Recorder) RecordTick(symbol string) {
	r.ticksReceived.WithLabelValues(symbol).Inc()
}

// RecordStored records n ticks written to a backend.
func (r *Recorder) RecordStored(backend string, n int) {
	r.recordsStored.WithLabelValues(backend).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordReconnect(symbol string) {
	r.reconnects.WithLabelValues(symbol).Inc()
}

func (r *Recorder) SetConnectionState(symbol string, state int) {
	r.connState.WithLabelValues(symbol).Set(float64(state))
}

func (r *Recorder) RecordAlertTriggered(metric string) {
	r.alertsTriggered.WithLabelValues(metric).Inc()
}

func (r *Recorder) SetBufferSize(symbol string, n int) {
	r.bufferSize.WithLabelValues(symbol).Set(float64(n))
}

// Nop is a Metrics implementation that records nothing.
type Nop struct{}

func (Nop) RecordTick(string) {}
func (Nop) RecordStored(string, int) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordReconnect(string) {}
func (Nop) SetConnectionState(string, int) {}
func (Nop) RecordAlertTriggered(string) {}
func (Nop) SetBufferSize(string, int) {}
