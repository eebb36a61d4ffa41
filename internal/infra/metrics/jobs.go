package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobRunsTotal, jobDurationSeconds) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_runs_total",
			Help: "Background job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // 'ok', 'failed'
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job run duration.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)
)

func ObserveJob(job string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	jobRunsTotal.WithLabelValues(norm(job), status).Inc()
	jobDurationSeconds.WithLabelValues(norm(job)).Observe(time.Since(started).Seconds())
}
