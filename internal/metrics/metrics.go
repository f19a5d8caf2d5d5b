package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments of the service.
type Metrics struct {
	SignalsTotal       *prometheus.CounterVec
	EventsReported     *prometheus.CounterVec
	SinkFailures       *prometheus.CounterVec
	RateLimitedBatches prometheus.Counter
	ActiveSessions     prometheus.Gauge
}

// New creates the instruments and registers them on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interaction_signals_total",
				Help: "Raw page signals accepted, by signal type",
			},
			[]string{"type"},
		),
		EventsReported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interaction_events_reported_total",
				Help: "Analytics events delivered to the sink, by event name",
			},
			[]string{"event"},
		),
		SinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interaction_sink_failures_total",
				Help: "Analytics events the sink failed to accept, by event name",
			},
			[]string{"event"},
		),
		RateLimitedBatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "interaction_rate_limited_batches_total",
				Help: "Signal batches rejected by the per-session limiter",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "interaction_active_sessions",
				Help: "Page sessions currently held in memory",
			},
		),
	}

	registry.MustRegister(
		m.SignalsTotal,
		m.EventsReported,
		m.SinkFailures,
		m.RateLimitedBatches,
		m.ActiveSessions,
	)
	return m
}
