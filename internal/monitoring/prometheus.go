package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports the fieldcrypt metrics to a Prometheus
// registry. Metric names it does not know are dropped.
type PrometheusCollector struct {
	registry *prometheus.Registry

	counters map[string]*labeledCounter
	duration *prometheus.HistogramVec
}

type labeledCounter struct {
	vec    *prometheus.CounterVec
	labels []string
}

// NewPrometheusCollector registers the metrics on reg. A nil reg gets a
// fresh registry, available through Registry.
func NewPrometheusCollector(reg *prometheus.Registry) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &PrometheusCollector{
		registry: reg,
		counters: make(map[string]*labeledCounter),
	}

	c.counter(MetricSQLRewrites, "Statements inspected by the SQL rewriter", "kind", "changed")
	c.counter(MetricCryptoFailures, "Encrypt or decrypt calls that failed open", "direction", "algorithm")
	c.counter(MetricKeyOperations, "Key manager operations", "operation")
	c.counter(MetricFieldsProcessed, "Struct or map fields transformed", "direction")

	c.duration = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    MetricOperationDuration,
			Help:    "Duration of rewrite and field processing operations in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		},
		[]string{"operation"},
	)
	return c
}

func (c *PrometheusCollector) counter(name, help string, labels ...string) {
	c.counters[name] = &labeledCounter{
		vec: promauto.With(c.registry).NewCounterVec(
			prometheus.CounterOpts{Name: name, Help: help},
			labels,
		),
		labels: labels,
	}
}

// Registry returns the registry the metrics are registered on.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *PrometheusCollector) IncrementCounter(name string, tags map[string]string) {
	c.IncrementCounterBy(name, 1, tags)
}

func (c *PrometheusCollector) IncrementCounterBy(name string, value int64, tags map[string]string) {
	lc, ok := c.counters[name]
	if !ok || value <= 0 {
		return
	}
	lc.vec.WithLabelValues(labelValues(lc.labels, tags)...).Add(float64(value))
}

func (c *PrometheusCollector) RecordTiming(name string, duration time.Duration, tags map[string]string) {
	if name != MetricOperationDuration {
		return
	}
	c.duration.WithLabelValues(tags["operation"]).Observe(duration.Seconds())
}

func (c *PrometheusCollector) Flush() error { return nil }

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = tags[l]
	}
	return values
}
