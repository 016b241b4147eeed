// Package metrics provides Prometheus metrics for pipeline runs and reports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Manager owns the pipeline collectors. A nil *Manager is a no-op.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	lastSuccessUnix   *prometheus.GaugeVec
	rowsExtracted     *prometheus.CounterVec
	rowsPublished     *prometheus.CounterVec
	partitionsWritten *prometheus.CounterVec
	reportCache       *prometheus.CounterVec
}

// NewManager creates the collectors and registers them.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "truckpipe",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Pipeline runs by flow and outcome",
	}, []string{"flow", "status"})

	m.runDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of pipeline runs",
		Buckets:   m.histogramBuckets,
	}, []string{"flow"})

	m.lastSuccessUnix = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run per flow",
	}, []string{"flow"})

	m.rowsExtracted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_extracted_total",
		Help:      "Rows read from the source store",
	}, []string{"dataset"})

	m.rowsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_published_total",
		Help:      "Rows written to object storage",
	}, []string{"dataset"})

	m.partitionsWritten = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "partitions_written_total",
		Help:      "Partition files appended to partitioned datasets",
	}, []string{"dataset"})

	m.reportCache = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "report",
		Name:      "cache_lookups_total",
		Help:      "Report query cache lookups by result",
	}, []string{"result"})
}

// RecordRun records the outcome and duration of a flow run.
func (m *Manager) RecordRun(flow string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.runs.WithLabelValues(flow, status).Inc()
	m.runDuration.WithLabelValues(flow).Observe(took.Seconds())
	if err == nil {
		m.lastSuccessUnix.WithLabelValues(flow).SetToCurrentTime()
	}
}

func (m *Manager) AddRowsExtracted(dataset string, n int) {
	if m == nil {
		return
	}
	m.rowsExtracted.WithLabelValues(dataset).Add(float64(n))
}

func (m *Manager) AddRowsPublished(dataset string, n int) {
	if m == nil {
		return
	}
	m.rowsPublished.WithLabelValues(dataset).Add(float64(n))
}

func (m *Manager) AddPartitionsWritten(dataset string, n int) {
	if m == nil {
		return
	}
	m.partitionsWritten.WithLabelValues(dataset).Add(float64(n))
}

// RecordCacheLookup counts report cache hits and misses.
func (m *Manager) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.reportCache.WithLabelValues(result).Inc()
}
