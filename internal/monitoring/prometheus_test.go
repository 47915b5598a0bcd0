package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	var metric dto.Metric
	require.NoError(t, counter.Write(&metric))
	return metric.Counter.GetValue()
}

func TestPrometheusCollector_Counters(t *testing.T) {
	c := NewPrometheusCollector(nil)
	require.NotNil(t, c.Registry())

	c.IncrementCounter(MetricSQLRewrites, map[string]string{"kind": "SELECT", "changed": "true"})
	c.IncrementCounter(MetricSQLRewrites, map[string]string{"kind": "SELECT", "changed": "true"})
	c.IncrementCounterBy(MetricFieldsProcessed, 3, map[string]string{"direction": "encrypt"})
	c.IncrementCounter(MetricKeyOperations, map[string]string{"operation": "rotate", "ignored": "x"})
	c.IncrementCounter("unknown_metric", nil)

	assert.Equal(t, 2.0, counterValue(t, c.counters[MetricSQLRewrites].vec, "SELECT", "true"))
	assert.Equal(t, 3.0, counterValue(t, c.counters[MetricFieldsProcessed].vec, "encrypt"))
	assert.Equal(t, 1.0, counterValue(t, c.counters[MetricKeyOperations].vec, "rotate"))
}

func TestPrometheusCollector_Gather(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.IncrementCounter(MetricCryptoFailures, map[string]string{"direction": "decrypt", "algorithm": "AES"})
	c.RecordTiming(MetricOperationDuration, 5*time.Millisecond, map[string]string{"operation": "rewrite"})
	c.RecordTiming("other", time.Second, nil)
	assert.NoError(t, c.Flush())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names[MetricCryptoFailures])
	assert.True(t, names[MetricOperationDuration])
}

func TestMetricsHook_FeedsPrometheus(t *testing.T) {
	c := NewPrometheusCollector(nil)
	hook := NewMetricsObservabilityHook(c)

	hook.OnRewrite(t.Context(), "DELETE", false, time.Microsecond)
	hook.OnFieldsProcessed(t.Context(), "decrypt", 2, time.Microsecond)

	assert.Equal(t, 1.0, counterValue(t, c.counters[MetricSQLRewrites].vec, "DELETE", "false"))
	assert.Equal(t, 2.0, counterValue(t, c.counters[MetricFieldsProcessed].vec, "decrypt"))
}
