package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the validator agent.
type Metrics struct {
	Validations      *prometheus.CounterVec
	ProbeLatencyMs   prometheus.Histogram
	Reconnects       prometheus.Counter
	ConnectionState  prometheus.Gauge
	CallbacksExpired prometheus.Counter
	DroppedMessages  *prometheus.CounterVec
	SendFailures     prometheus.Counter
}

// New creates and registers the agent metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uptime_validator_validations_total",
			Help: "Total number of validation results produced, by status",
		}, []string{"status"}),
		ProbeLatencyMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "uptime_validator_probe_latency_ms",
			Help:    "Latency of successful probes in milliseconds",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_validator_reconnects_total",
			Help: "Total number of reconnect attempts to the hub",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "uptime_validator_connection_state",
			Help: "Connection state (0=disconnected, 1=connecting, 2=awaiting signup, 3=active)",
		}),
		CallbacksExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_validator_callbacks_expired_total",
			Help: "Total number of pending callbacks dropped after their TTL",
		}),
		DroppedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uptime_validator_dropped_messages_total",
			Help: "Total number of inbound messages dropped, by reason",
		}, []string{"reason"}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_validator_send_failures_total",
			Help: "Total number of outbound messages that could not be written",
		}),
	}
}

// ObserveValidation records one produced result.
func (m *Metrics) ObserveValidation(status string, latency time.Duration, ok bool) {
	m.Validations.WithLabelValues(status).Inc()
	if ok {
		m.ProbeLatencyMs.Observe(float64(latency.Milliseconds()))
	}
}

// IncReconnects increments the reconnect counter.
func (m *Metrics) IncReconnects() {
	m.Reconnects.Inc()
}

// SetConnectionState sets the connection state gauge.
func (m *Metrics) SetConnectionState(state int) {
	m.ConnectionState.Set(float64(state))
}

// IncCallbacksExpired increments the expired callback counter.
func (m *Metrics) IncCallbacksExpired() {
	m.CallbacksExpired.Inc()
}

// IncDropped increments the dropped message counter for reason.
func (m *Metrics) IncDropped(reason string) {
	m.DroppedMessages.WithLabelValues(reason).Inc()
}

// IncSendFailures increments the send failure counter.
func (m *Metrics) IncSendFailures() {
	m.SendFailures.Inc()
}
