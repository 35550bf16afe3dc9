package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Result cache lookups by cache and outcome.",
	},
	[]string{"cache", "result"}, // e.g., cache="booking", result="hit"
)

func IncCacheRequest(cacheName string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequestsTotal.WithLabelValues(norm(cacheName), result).Inc()
}
