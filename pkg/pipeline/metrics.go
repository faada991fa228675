package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for pipeline stage counters.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics provides Prometheus metrics for the artifact pipeline.
type Metrics struct {
	ingestsTotal    *prometheus.CounterVec
	processDuration prometheus.Histogram
	revisionsTotal  *prometheus.CounterVec
	meetingsDeleted prometheus.Counter
}

// NewMetrics creates and registers pipeline metrics. A nil registry
// creates unregistered metrics, useful for tests.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ingestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "talktrace",
				Subsystem: "pipeline",
				Name:      "ingests_total",
				Help:      "Recording ingestion runs by outcome",
			},
			[]string{"outcome"},
		),
		processDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "talktrace",
				Subsystem: "pipeline",
				Name:      "process_duration_seconds",
				Help:      "Duration of one transcribe-and-summarize run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		revisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "talktrace",
				Subsystem: "pipeline",
				Name:      "revisions_written_total",
				Help:      "Revision rows written by artifact kind",
			},
			[]string{"kind"},
		),
		meetingsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "talktrace",
				Subsystem: "pipeline",
				Name:      "meetings_deleted_total",
				Help:      "Meetings crypto-shredded",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.ingestsTotal,
			m.processDuration,
			m.revisionsTotal,
			m.meetingsDeleted,
		)
	}
	return m
}

func (m *Metrics) recordIngest(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	m.ingestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordProcess(start time.Time) {
	if m == nil {
		return
	}
	m.processDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordRevision(kind string) {
	if m == nil {
		return
	}
	m.revisionsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) recordDelete() {
	if m == nil {
		return
	}
	m.meetingsDeleted.Inc()
}
