// Package metrics holds the prometheus collectors for the power simulation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns its own prometheus registry so tests and multiple worlds never
// collide on the global one.
type Registry struct {
	Nodes          prometheus.Gauge
	Networks       prometheus.Gauge
	ActiveNetworks prometheus.Gauge

	ActionsTotal   *prometheus.CounterVec
	MergesTotal    prometheus.Counter
	SplitsTotal    prometheus.Counter
	RejectedTotal  *prometheus.CounterVec
	RemovedTotal   prometheus.Counter
	SyncRecords    *prometheus.CounterVec
	SnapshotsTotal *prometheus.CounterVec

	StepDuration prometheus.Histogram

	registry *prometheus.Registry
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}
	r.initGraphMetrics()
	r.initTickMetrics()
	return r
}

func (r *Registry) initGraphMetrics() {
	r.Nodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "mechpower_nodes",
			Help: "Registered power nodes",
		},
	)
	r.Networks = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "mechpower_networks",
			Help: "Live networks",
		},
	)
	r.ActiveNetworks = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "mechpower_active_networks",
			Help: "Networks that have ever had a positive target speed",
		},
	)
	r.ActionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mechpower_actions_total",
			Help: "Lifecycle actions by kind and outcome",
		},
		[]string{"action", "outcome"},
	)
	r.MergesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "mechpower_merges_total",
			Help: "Networks absorbed by a merge",
		},
	)
	r.SplitsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "mechpower_splits_total",
			Help: "Networks peeled off by a split",
		},
	)
	r.RejectedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mechpower_rejected_total",
			Help: "Nodes rejected for inconsistent rotation",
		},
		[]string{"action"},
	)
	r.RemovedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "mechpower_networks_removed_total",
			Help: "Networks deleted after losing their last member",
		},
	)
}

func (r *Registry) initTickMetrics() {
	r.SyncRecords = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mechpower_sync_records_total",
			Help: "Network records sent to observers",
		},
		[]string{"kind"},
	)
	r.SnapshotsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mechpower_snapshots_total",
			Help: "Snapshots written by outcome",
		},
		[]string{"status"},
	)
	r.StepDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mechpower_step_duration_seconds",
			Help:    "Wall time of one simulation tick",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		},
	)
}

// RecordAction counts a lifecycle action.
func (r *Registry) RecordAction(action string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	r.ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordStep observes one tick and refreshes the population gauges.
func (r *Registry) RecordStep(d time.Duration, nodes, networks, active int) {
	r.StepDuration.Observe(d.Seconds())
	r.Nodes.Set(float64(nodes))
	r.Networks.Set(float64(networks))
	r.ActiveNetworks.Set(float64(active))
}

// RecordSync counts emitted records split into updates and removals.
func (r *Registry) RecordSync(updates, removals int) {
	if updates > 0 {
		r.SyncRecords.WithLabelValues("update").Add(float64(updates))
	}
	if removals > 0 {
		r.SyncRecords.WithLabelValues("removed").Add(float64(removals))
	}
}

func (r *Registry) RecordSnapshot(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.SnapshotsTotal.WithLabelValues(status).Inc()
}

func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves this registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
