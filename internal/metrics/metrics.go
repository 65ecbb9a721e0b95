// Package metrics holds the Prometheus instruments of the client core.
//
// All methods are nil-safe so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "haccp"

type Metrics struct {
	requests       *prometheus.CounterVec
	fallbacks      prometheus.Counter
	mockMode       prometheus.Gauge
	probes         *prometheus.CounterVec
	backupRuns     *prometheus.CounterVec
	backupDuration prometheus.Histogram
	scheduleTicks  *prometheus.CounterVec
}

// New creates the instruments and registers them on reg (if non-nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatcher requests by route (live|mock), method and outcome.",
		}, []string{"route", "method", "outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_fallbacks_total",
			Help:      "Live calls that failed and were answered by the mock responder.",
		}),
		mockMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mock_mode",
			Help:      "1 while the client answers from the mock responder.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connectivity_probes_total",
			Help:      "Connectivity probes by kind (startup|status) and result.",
		}, []string{"kind", "result"}),
		backupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_runs_total",
			Help:      "Backup attempts by trigger and status.",
		}, []string{"trigger", "status"}),
		backupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of backup attempts that acquired the run lock.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		scheduleTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_ticks_total",
			Help:      "Schedule tick evaluations by result (idle|waiting|fired|skipped_late).",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.fallbacks, m.mockMode, m.probes, m.backupRuns, m.backupDuration, m.scheduleTicks)
	}
	return m
}

func (m *Metrics) ObserveRequest(route, method string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "fail"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
}

func (m *Metrics) ObserveFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) SetMockMode(on bool) {
	if m == nil {
		return
	}
	if on {
		m.mockMode.Set(1)
		return
	}
	m.mockMode.Set(0)
}

func (m *Metrics) ObserveProbe(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.probes.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveBackup(trigger, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.backupRuns.WithLabelValues(trigger, status).Inc()
	if took > 0 {
		m.backupDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) ObserveTick(result string) {
	if m == nil {
		return
	}
	m.scheduleTicks.WithLabelValues(result).Inc()
}

// Fallbacks returns the fallback counter (used by tests and diagnostics).
func (m *Metrics) Fallbacks() prometheus.Counter {
	if m == nil {
		return nil
	}
	return m.fallbacks
}

// BackupRuns returns the backup run counter vector.
func (m *Metrics) BackupRuns() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.backupRuns
}
