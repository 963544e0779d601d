package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestDuration) }

var httpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latency of HTTP requests by route pattern and status.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"server", "route", "status"},
)

// ObserveHTTPRequest expects the route pattern, not the raw path, to keep
// label cardinality bounded.
func ObserveHTTPRequest(server, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(norm(server), route, strconv.Itoa(status)).Observe(d.Seconds())
}
