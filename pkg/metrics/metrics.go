// Package metrics exposes the grid's Prometheus instrumentation: queue
// depth and latency, scheduling-tick outcomes, and node/slot occupancy.
// Not named in spec.md, which scopes metrics out of the core's
// explicit operations, but carried as ambient infrastructure the way
// the teacher's own services instrument themselves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the grid registers. A nil *Metrics is
// not valid; use New to build one bound to a registry (or NewDefault
// for the global one).
type Metrics struct {
	QueueDepth          prometheus.Gauge
	QueueWaitSeconds    prometheus.Histogram
	SchedulerTicks      *prometheus.CounterVec // label "outcome": matched|retried|rejected|noop
	NodesRegistered     prometheus.Gauge
	SlotsFree           prometheus.Gauge
	SlotsBusy           prometheus.Gauge
	SessionsCreatedTotal *prometheus.CounterVec // label "result": success|retryable|fatal
}

// New registers and returns a fresh Metrics bundle on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridcore",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of session requests currently waiting in the queue.",
		}),
		QueueWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridcore",
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time a session request spent in the queue before a terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}),
		SchedulerTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridcore",
			Subsystem: "distributor",
			Name:      "scheduler_ticks_total",
			Help:      "Scheduling tick outcomes, by result.",
		}, []string{"outcome"}),
		NodesRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridcore",
			Subsystem: "distributor",
			Name:      "nodes_registered",
			Help:      "Number of nodes currently known to the distributor.",
		}),
		SlotsFree: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridcore",
			Subsystem: "distributor",
			Name:      "slots_free",
			Help:      "Number of free slots across all registered nodes.",
		}),
		SlotsBusy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridcore",
			Subsystem: "distributor",
			Name:      "slots_busy",
			Help:      "Number of occupied slots across all registered nodes.",
		}),
		SessionsCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridcore",
			Subsystem: "distributor",
			Name:      "sessions_created_total",
			Help:      "Session creation attempts, by result.",
		}, []string{"result"}),
	}
}

// NewDefault registers onto prometheus.DefaultRegisterer, for the
// common case of one grid process per binary.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// ObserveNodeStatuses updates the node and slot gauges from counts the
// caller has already derived from its grid model. Taking plain counts
// keeps this package from depending on pkg/distributor.
func (m *Metrics) ObserveNodeStatuses(nodeCount, freeSlots, busySlots int) {
	m.NodesRegistered.Set(float64(nodeCount))
	m.SlotsFree.Set(float64(freeSlots))
	m.SlotsBusy.Set(float64(busySlots))
}
