// Package metrics exposes cleanup loop activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ScanCleanup/internal/cleanup/domain"
)

type Metrics interface {
	ObserveCycle(report *domain.CycleReport)
	IncPollRetry(op string)
	ObserveStop(err error)
}

type PrometheusMetrics struct {
	activeScans    prometheus.Gauge
	pausedScans    prometheus.Gauge
	slots          prometheus.Gauge
	expectedHosts  prometheus.Gauge
	lastCycleTime  prometheus.Gauge
	cyclesTotal    *prometheus.CounterVec
	resumedTotal   prometheus.Counter
	resumeFailures prometheus.Counter
	pollRetries    *prometheus.CounterVec
	stoppedTotal   *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
}

// NewPrometheusMetrics registers the collectors on reg.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if namespace == "" {
		namespace = "scancleanup"
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		activeScans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "active_scans",
			Help:      "Active scans observed at the start of the last cycle",
		}),
		pausedScans: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "paused_scans",
			Help:      "Paused scans observed at the start of the last cycle",
		}),
		slots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "available_slots",
			Help:      "Queue slots available for resumption in the last cycle",
		}),
		expectedHosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "expected_hosts",
			Help:      "Hosts expected to be under scan after the last cycle",
		}),
		lastCycleTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix timestamp of the last cycle",
		}),
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "cycles_total",
			Help:      "Total number of cleanup cycles",
		}, []string{"result"}),
		resumedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "resumed_scans_total",
			Help:      "Total number of scans resumed",
		}),
		resumeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "resume_failures_total",
			Help:      "Total number of failed resume commands",
		}),
		pollRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "poll_retries_total",
			Help:      "Total number of console polls retried after a failure",
		}, []string{"op"}),
		stoppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "stop_commands_total",
			Help:      "Total number of stop commands by result",
		}, []string{"result"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of cleanup cycles in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

func (m *PrometheusMetrics) ObserveCycle(report *domain.CycleReport) {
	result := "active"
	if report.Drained {
		result = "drained"
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(report.Duration)

	m.activeScans.Set(float64(report.ActiveCount))
	m.pausedScans.Set(float64(report.PausedCount))
	m.slots.Set(float64(report.Slots))
	m.expectedHosts.Set(float64(report.ExpectedHosts))
	m.lastCycleTime.Set(float64(report.Timestamp.Unix()))

	m.resumedTotal.Add(float64(len(report.ResumedIDs)))
	m.resumeFailures.Add(float64(len(report.FailedIDs)))
}

func (m *PrometheusMetrics) IncPollRetry(op string) {
	m.pollRetries.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) ObserveStop(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.stoppedTotal.WithLabelValues(result).Inc()
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ObserveCycle(*domain.CycleReport) {}
func (NoopMetrics) IncPollRetry(string)              {}
func (NoopMetrics) ObserveStop(error)                {}

var _ Metrics = NoopMetrics{}
