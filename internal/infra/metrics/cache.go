package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(settingsCacheTotal) }

var settingsCacheTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "license_settings_cache_total",
		Help: "Settings cache lookups by scope (key or list) and result (hit, miss, error).",
	},
	[]string{"scope", "result"},
)

// Settings cache results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// IncSettingsCache counts one settings cache lookup. A read error is
// counted as well as the miss that follows it.
func IncSettingsCache(scope, result string) {
	settingsCacheTotal.WithLabelValues(norm(scope), norm(result)).Inc()
}
