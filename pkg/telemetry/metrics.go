package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Node sources for RecordNodes.
const (
	SourceDirect    = "direct"
	SourceDynamic   = "dynamic"
	SourceComponent = "component"
)

// Metrics provides Prometheus metrics for dynflow. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	config MetricsConfig

	compositions        *prometheus.CounterVec
	compositionDuration *prometheus.HistogramVec
	nodesComposed       *prometheus.CounterVec
	unresolvedDynamic   prometheus.Counter
	templatesRendered   *prometheus.CounterVec
	errorsByClass       *prometheus.CounterVec
	lastNodeCount       prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		compositions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compositions_total",
				Help:      "Total number of compositions by outcome",
			},
			[]string{"status"},
		),
		compositionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "composition_duration_seconds",
				Help:      "Duration of compositions in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		nodesComposed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_composed_total",
				Help:      "Total number of entries appended to composed dataflows by source",
			},
			[]string{"source"},
		),
		unresolvedDynamic: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dynamic_nodes_unresolved_total",
				Help:      "Total number of dynamic node references that matched no node",
			},
		),
		templatesRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "templates_rendered_total",
				Help:      "Total number of templates rendered by kind",
			},
			[]string{"kind"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		lastNodeCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_dataflow_nodes",
				Help:      "Number of entries in the most recently composed dataflow",
			},
		),
	}

	if err := registerAll(registry,
		m.compositions,
		m.compositionDuration,
		m.nodesComposed,
		m.unresolvedDynamic,
		m.templatesRendered,
		m.errorsByClass,
		m.lastNodeCount,
	); err != nil {
		return nil, err
	}

	return m, nil
}

func registerAll(r *prometheus.Registry, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// RecordComposition records a finished composition with its outcome and
// duration. nodes is the size of the result and is ignored on failure.
func (m *Metrics) RecordComposition(status string, duration time.Duration, nodes int) {
	if m == nil {
		return
	}
	m.compositions.WithLabelValues(status).Inc()
	m.compositionDuration.WithLabelValues(status).Observe(duration.Seconds())
	if status == "success" {
		m.lastNodeCount.Set(float64(nodes))
	}
}

// RecordNodes counts entries appended from a source.
func (m *Metrics) RecordNodes(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.nodesComposed.WithLabelValues(source).Add(float64(n))
}

// RecordUnresolvedDynamicNode counts a dynamic reference that matched nothing.
func (m *Metrics) RecordUnresolvedDynamicNode() {
	if m == nil {
		return
	}
	m.unresolvedDynamic.Inc()
}

// RecordTemplateRendered counts a rendered template of the given kind.
func (m *Metrics) RecordTemplateRendered(kind string) {
	if m == nil {
		return
	}
	m.templatesRendered.WithLabelValues(kind).Inc()
}

// RecordError records an error by class.
func (m *Metrics) RecordError(class string) {
	if m == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Registry returns the registry holding every dynflow metric.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
