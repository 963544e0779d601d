package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(tasksProcessedTotal, deferredQueueDepth) }

var (
	tasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_processed_total",
			Help: "Background tasks processed, labeled by pool and status.",
		},
		[]string{"pool", "status"}, // 'ok', 'failed', 'dropped'
	)

	deferredQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deferred_queue_depth",
			Help: "Requests waiting in the deferred retry queue.",
		},
	)
)

func IncTask(pool, status string) {
	tasksProcessedTotal.WithLabelValues(norm(pool), norm(status)).Inc()
}

func SetDeferredDepth(n int) {
	deferredQueueDepth.Set(float64(n))
}
