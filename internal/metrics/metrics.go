// Package metrics exposes Prometheus collectors for reconciliation passes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgeroute"

// Collector tracks reconciliation activity.
//
// Metrics:
//   - edgeroute_reconcile_passes_total: passes by scope and outcome
//   - edgeroute_fragment_writes_total: fragment files written or removed
//   - edgeroute_workload_restarts_total: proxy restarts issued
//   - edgeroute_static_conflicts_total: discarded static fragments
//   - edgeroute_links: current links by negotiation state
type Collector struct {
	registry *prometheus.Registry

	passes    *prometheus.CounterVec
	writes    *prometheus.CounterVec
	restarts  prometheus.Counter
	conflicts *prometheus.CounterVec
	links     *prometheus.GaugeVec
}

// NewCollector creates a collector registered on its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_passes_total",
				Help:      "Total number of reconciliation passes",
			},
			[]string{"scope", "outcome"},
		),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragment_writes_total",
				Help:      "Total number of dynamic config files written or removed",
			},
			[]string{"op"},
		),
		restarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workload_restarts_total",
				Help:      "Total number of proxy workload restarts",
			},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "static_conflicts_total",
				Help:      "Total number of static fragments discarded on conflict",
			},
			[]string{"owner"},
		),
		links: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "links",
				Help:      "Current number of links by negotiation state",
			},
			[]string{"state"},
		),
	}

	c.registry.MustRegister(c.passes, c.writes, c.restarts, c.conflicts, c.links)
	return c
}

// Pass records a finished reconciliation pass
func (c *Collector) Pass(scope, outcome string) {
	c.passes.WithLabelValues(scope, outcome).Inc()
}

// Write records a fragment write ("write") or removal ("remove")
func (c *Collector) Write(op string) {
	c.writes.WithLabelValues(op).Inc()
}

// Restart records a workload restart
func (c *Collector) Restart() {
	c.restarts.Inc()
}

// Conflict records a discarded static fragment
func (c *Collector) Conflict(owner string) {
	c.conflicts.WithLabelValues(owner).Inc()
}

// Links sets the link gauge from per-state counts
func (c *Collector) Links(counts map[string]int) {
	c.links.Reset()
	for state, n := range counts {
		c.links.WithLabelValues(state).Set(float64(n))
	}
}

// Registry returns the registry holding the collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
