// Package metrics exposes the diner counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "diner"

// Metrics implements diner.Metrics on a dedicated registry.
type Metrics struct {
	registry      *prometheus.Registry
	registrations *prometheus.CounterVec
	cancellations prometheus.Counter
	reveals       prometheus.Counter
	overrides     *prometheus.CounterVec
	polls         *prometheus.CounterVec
}

// New registers the diner collectors together with the Go and process
// collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Weekly registrations accepted, by whether a restaurant was assigned at intake.",
		}, []string{"assigned"}),
		cancellations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Registrations withdrawn by their owner.",
		}),
		reveals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveals_total",
			Help:      "Registrants revealed by the scheduled reveal pass.",
		}),
		overrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_overrides_total",
			Help:      "Administrative overrides, by action.",
		}, []string{"action"}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveal_polls_total",
			Help:      "Reveal poller passes, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Registered(assigned bool) {
	label := "false"
	if assigned {
		label = "true"
	}
	m.registrations.WithLabelValues(label).Inc()
}

func (m *Metrics) Cancelled() { m.cancellations.Inc() }

func (m *Metrics) Revealed(n int) { m.reveals.Add(float64(n)) }

func (m *Metrics) Override(action string) { m.overrides.WithLabelValues(action).Inc() }

// Poll counts a reveal poller pass; outcome is "ok", "error" or "skipped".
func (m *Metrics) Poll(outcome string) { m.polls.WithLabelValues(outcome).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
