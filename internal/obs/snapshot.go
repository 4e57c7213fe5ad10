package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlexKimmel/tamperguard/internal/protect"
)

// SnapshotSource is satisfied by *protect.Protector.
type SnapshotSource interface {
	Snapshot() protect.Metrics
}

// SnapshotCollector exposes the protector's aggregate counters, read at
// scrape time.
type SnapshotCollector struct {
	src SnapshotSource

	attempts    *prometheus.Desc
	succeeded   *prometheus.Desc
	failed      *prometheus.Desc
	rateLimited *prometheus.Desc
	rejected    *prometheus.Desc
	successRate *prometheus.Desc
	lastAttempt *prometheus.Desc
}

func NewSnapshotCollector(src SnapshotSource) *SnapshotCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("tamperguard_protection_"+name, help, nil, nil)
	}
	return &SnapshotCollector{
		src:         src,
		attempts:    desc("attempts_total", "Execute calls seen by the protector"),
		succeeded:   desc("successful_executions_total", "Executions that succeeded"),
		failed:      desc("failed_executions_total", "Executions that failed"),
		rateLimited: desc("rate_limited_total", "Attempts rejected by the rate limiter"),
		rejected:    desc("circuit_rejections_total", "Attempts rejected by an open circuit"),
		successRate: desc("success_ratio", "Successful executions divided by attempts"),
		lastAttempt: desc("last_attempt_timestamp_seconds", "Unix time of the last attempt"),
	}
}

func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.attempts
	ch <- c.succeeded
	ch <- c.failed
	ch <- c.rateLimited
	ch <- c.rejected
	ch <- c.successRate
	ch <- c.lastAttempt
}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(m.TotalAttempts))
	ch <- prometheus.MustNewConstMetric(c.succeeded, prometheus.CounterValue, float64(m.SuccessfulExecutions))
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(m.FailedExecutions))
	ch <- prometheus.MustNewConstMetric(c.rateLimited, prometheus.CounterValue, float64(m.RateLimitedAttempts))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(m.CircuitBreakerRejections))
	ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, m.SuccessRate)

	var last float64
	if m.LastAttemptTime != nil {
		last = float64(m.LastAttemptTime.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lastAttempt, prometheus.GaugeValue, last)
}
