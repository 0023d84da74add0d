package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records cron cycles and the jobs they run. A nil value is a no-op.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cp_cron_job_runs_total",
			Help: "Cron job executions by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cp_cron_job_duration_seconds",
			Help:    "Wall time of cron job executions.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cp_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cp_cron_cycles_skipped_total",
			Help: "Cycles skipped because another instance held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// RecordRun counts one execution of job. A nil err is a success.
func (c *CronJobMetrics) RecordRun(job string, err error, elapsed time.Duration) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, OutcomeFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, OutcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func (c *CronJobMetrics) CycleSkipped() {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
