package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo, workerInfo)
}

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "A constant metric with labels for version and commit hash.",
		},
		[]string{"version", "commit"},
	)

	workerInfo = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrape_worker_concurrency",
			Help: "Configured worker concurrency; 0 when the process runs API-only.",
		},
	)
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func SetWorkerConcurrency(n int) {
	workerInfo.Set(float64(n))
}
