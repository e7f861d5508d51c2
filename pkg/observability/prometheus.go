package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusObserver exports operation timings and warnings as Prometheus
// metrics on its own registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	warnings   *prometheus.CounterVec
}

// NewPrometheusObserver creates an observer whose metrics live under
// namespace.
func NewPrometheusObserver(namespace string) *PrometheusObserver {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of store and resolver operations",
		},
		[]string{"operation", "status"},
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	warnings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of recoverable anomalies",
		},
		[]string{"event"},
	)

	registry.MustRegister(operations, duration, warnings)

	return &PrometheusObserver{
		registry:   registry,
		operations: operations,
		duration:   duration,
		warnings:   warnings,
	}
}

func (o *PrometheusObserver) Timing(_ context.Context, operation string, d time.Duration, err error) {
	o.operations.WithLabelValues(operation, Status(err)).Inc()
	o.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (o *PrometheusObserver) Warning(_ context.Context, event string, _ ...zap.Field) {
	o.warnings.WithLabelValues(event).Inc()
}

// Registry returns the registry holding the observer's metrics.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}
