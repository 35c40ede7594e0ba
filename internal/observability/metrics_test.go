package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsScrapeURLFallsBackToDefaultPort(t *testing.T) {
	original := metricsPort
	t.Cleanup(func() { metricsPort = original })

	metricsPort = 0
	assert.Equal(t, "http://127.0.0.1:9090/metrics", MetricsScrapeURL())

	metricsPort = 19091
	assert.Equal(t, "http://127.0.0.1:19091/metrics", MetricsScrapeURL())
}

func TestShutdownMetricsWithoutExporter(t *testing.T) {
	originalSystem, originalExporter := TelemetrySystem, PrometheusExporter
	t.Cleanup(func() {
		TelemetrySystem, PrometheusExporter = originalSystem, originalExporter
	})

	PrometheusExporter = nil
	require.NoError(t, ShutdownMetrics())
	assert.Nil(t, TelemetrySystem)
}
