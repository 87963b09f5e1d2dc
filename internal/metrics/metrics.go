// Package metrics holds the Prometheus collectors of the engine. They are
// registered with the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inventory"

// TasksTotal counts tasks reaching a terminal status.
var TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "tasks_total",
	Help:      "Collection tasks that reached a terminal status.",
}, []string{"kind", "status"})

// UnitsTotal counts per-unit outcomes.
var UnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "units_total",
	Help:      "Units processed by collection tasks, by result.",
}, []string{"result"})

var UnitCollectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "unit_collect_duration_seconds",
	Help:      "Time spent collecting and storing the facts of one unit.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
}, []string{"kind"})

var RunningTasks = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "running_tasks",
	Help:      "Collection tasks currently executing.",
})

// ProgressUpdateRetries counts progress updates retried after contention.
var ProgressUpdateRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "progress_update_retries_total",
	Help:      "Progress updates retried because of storage contention.",
})
