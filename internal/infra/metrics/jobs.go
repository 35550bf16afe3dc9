package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsEnqueuedTotal, jobsProcessedTotal, jobFailuresTotal, jobDurationSeconds, queueDepth)
}

var (
	jobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_enqueued_total",
			Help: "Lookup jobs enqueued after a cache miss, by provider.",
		},
		[]string{"provider"},
	)

	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_jobs_processed_total",
			Help: "Lookup jobs that reached a terminal state, by provider and status.",
		},
		[]string{"provider", "status"}, // 'completed', 'failed'
	)

	jobFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_job_failures_total",
			Help: "Failed lookup jobs by provider and failure kind.",
		},
		[]string{"provider", "kind"},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_job_duration_seconds",
			Help:    "Wall time of a lookup job from dequeue to terminal state.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"provider", "status"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrape_queue_depth",
			Help: "Jobs waiting in the pending list, sampled periodically.",
		},
	)
)

func IncJobEnqueued(provider string) {
	jobsEnqueuedTotal.WithLabelValues(norm(provider)).Inc()
}

// ObserveJob records a finished job. kind is empty for completed jobs.
func ObserveJob(provider, status, kind string, took time.Duration) {
	jobsProcessedTotal.WithLabelValues(norm(provider), norm(status)).Inc()
	jobDurationSeconds.WithLabelValues(norm(provider), norm(status)).Observe(took.Seconds())
	if kind != "" {
		jobFailuresTotal.WithLabelValues(norm(provider), norm(kind)).Inc()
	}
}

func SetQueueDepth(n int64) {
	queueDepth.Set(float64(n))
}
