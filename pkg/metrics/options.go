package metrics

import "github.com/prometheus/client_golang/prometheus"

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) { m.namespace = namespace }
}

// WithSubsystem sets the metric subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) { m.subsystem = subsystem }
}

// WithPrometheusRegistry registers metrics on r instead of the default registerer.
func WithPrometheusRegistry(r prometheus.Registerer) Option {
	return func(m *Manager) { m.registry = r }
}

// WithHistogramBuckets overrides the run duration buckets (seconds).
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) { m.histogramBuckets = buckets }
}
