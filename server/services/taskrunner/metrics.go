package taskrunner

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksDrainedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mappingtree_taskrunner_tasks_drained_total",
		Help: "Total number of rebuild tasks successfully drained (rebuilt and committed).",
	})

	tasksFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mappingtree_taskrunner_tasks_failed_total",
		Help: "Total number of rebuild tasks that failed and were added to the per-invocation failed set.",
	})

	pendingTasksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mappingtree_taskrunner_pending_tasks",
		Help: "Last observed count of pending rebuild tasks across all users.",
	})
)

func init() {
	prometheus.MustRegister(tasksDrainedTotal, tasksFailedTotal, pendingTasksGauge)
}

// MetricsHandler serves the registered task-runner metrics in the Prometheus text exposition
// format, for a caller to mount under /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
