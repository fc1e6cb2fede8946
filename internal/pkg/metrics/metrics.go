// Package metrics defines the ledger's Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "creditbook"

// Metrics groups every collector. Build one per registry with New.
type Metrics struct {
	registry *prometheus.Registry

	NotificationsTotal   *prometheus.CounterVec // kind, status: delivered|failed|skipped
	SchedulerRunsTotal   *prometheus.CounterVec // result: ok|error
	SchedulerRunDuration prometheus.Histogram
	SchedulerLastRun     prometheus.Gauge
	CreditsMarkedOverdue prometheus.Counter
	BadDebtAccounts      prometheus.Gauge
	CreditsIssuedTotal   prometheus.Counter
	CreditsPaidTotal     prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification dispatch outcomes",
			},
			[]string{"kind", "status"},
		),
		SchedulerRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_runs_total",
				Help:      "Escalation scheduler runs",
			},
			[]string{"result"},
		),
		SchedulerRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_run_duration_seconds",
			Help:      "Escalation scheduler run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		SchedulerLastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_last_run_timestamp_seconds",
			Help:      "Unix time of the last completed scheduler run",
		}),
		CreditsMarkedOverdue: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_marked_overdue_total",
			Help:      "Credits moved to overdue by the scheduler",
		}),
		BadDebtAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bad_debt_accounts",
			Help:      "Accounts flagged as bad debt in the last scheduler run",
		}),
		CreditsIssuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_issued_total",
			Help:      "Credits issued",
		}),
		CreditsPaidTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_paid_total",
			Help:      "Credits paid",
		}),
	}
}

// Registry exposes the underlying registry for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one scheduler run.
func (m *Metrics) ObserveRun(started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SchedulerRunsTotal.WithLabelValues(result).Inc()
	m.SchedulerRunDuration.Observe(time.Since(started).Seconds())
	if err == nil {
		m.SchedulerLastRun.SetToCurrentTime()
	}
}

// Push sends the registry to a Pushgateway. One-shot CLI runs exit before any scrape,
// so they push instead.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
