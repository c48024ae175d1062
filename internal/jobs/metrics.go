// Package jobmetrics holds the Prometheus collectors shared by the worker jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics counts job runs and the records they prune.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	pruned      *prometheus.CounterVec
}

var shared = sync.OnceValue(func() *Metrics {
	return register(prometheus.DefaultRegisterer)
})

// NewMetrics registers the collectors on registerer. A nil registerer returns
// the process-wide instance bound to the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return shared()
	}
	return register(registerer)
}

// Observe runs fn as one execution of job and returns its error unchanged.
// A nil receiver only runs fn.
func (m *Metrics) Observe(job string, fn func() error) error {
	start := time.Now()
	err := fn()
	if m == nil || job == "" {
		return err
	}
	m.duration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, statusFailure).Inc()
		m.failures.WithLabelValues(job).Inc()
		return err
	}
	m.runs.WithLabelValues(job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	return nil
}

// AddPruned counts records removed for target, a queue name or "activity_log".
func (m *Metrics) AddPruned(target string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.pruned.WithLabelValues(target).Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_jobs_total",
			Help: "Job executions by job and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_jobs_failures_total",
			Help: "Failed job executions.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_pruned_records_total",
			Help: "Records removed by prune jobs.",
		}, []string{"target"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.pruned)
	return m
}
