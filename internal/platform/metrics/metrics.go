package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the hub and record API.
type Metrics struct {
	ValidatorsConnected prometheus.Gauge
	Results             *prometheus.CounterVec
	JobsDispatched      prometheus.Counter
	JobsExpired         prometheus.Counter
	WebsitesCreated     prometheus.Counter
	TickPublishFailures prometheus.Counter
}

// New creates and registers the hub metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ValidatorsConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "uptime_hub_validators_connected",
			Help: "Number of validators with a signed-up session",
		}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uptime_hub_results_total",
			Help: "Validation results received, by status and signature outcome",
		}, []string{"status", "verified"}),
		JobsDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_hub_jobs_dispatched_total",
			Help: "Validate jobs sent to validators",
		}),
		JobsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_hub_jobs_expired_total",
			Help: "Validate jobs that got no result before their TTL",
		}),
		WebsitesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_hub_websites_created_total",
			Help: "Websites registered through the record API",
		}),
		TickPublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "uptime_hub_tick_publish_failures_total",
			Help: "Recorded ticks that could not be published to the event stream",
		}),
	}
}

func (m *Metrics) IncrementWebsitesCreated() {
	m.WebsitesCreated.Inc()
}

func (m *Metrics) ObserveResult(status string, verified bool) {
	v := "false"
	if verified {
		v = "true"
	}
	m.Results.WithLabelValues(status, v).Inc()
}

func (m *Metrics) SetValidatorsConnected(n int) {
	m.ValidatorsConnected.Set(float64(n))
}
