// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set holds every collector the server updates. All updates happen from the
// scheduler goroutine except WebhookFailures.
type Set struct {
	Registry *prometheus.Registry

	TickDuration    prometheus.Histogram
	SimTickDuration prometheus.Histogram
	Players         prometheus.Gauge
	Spectators      prometheus.Gauge
	ResidentsAlive  prometheus.Gauge
	Actions         prometheus.Counter
	WebhookFailures prometheus.Counter
}

func New() *Set {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	f := promauto.With(reg)
	return &Set{
		Registry: reg,
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opencity_tick_duration_seconds",
			Help:    "Wall time of one position tick.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		SimTickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opencity_sim_tick_duration_seconds",
			Help:    "Wall time of one simulation tick.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Players: f.NewGauge(prometheus.GaugeOpts{
			Name: "opencity_connected_players",
			Help: "Bound player sessions.",
		}),
		Spectators: f.NewGauge(prometheus.GaugeOpts{
			Name: "opencity_connected_spectators",
			Help: "Spectator sessions.",
		}),
		ResidentsAlive: f.NewGauge(prometheus.GaugeOpts{
			Name: "opencity_residents_alive",
			Help: "Residents with status alive.",
		}),
		Actions: f.NewCounter(prometheus.CounterOpts{
			Name: "opencity_actions_total",
			Help: "Client actions dispatched.",
		}),
		WebhookFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "opencity_webhook_failures_total",
			Help: "Webhook deliveries that did not return 2xx.",
		}),
	}
}
