package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// defaultMetricsPort is reported when the exporter bound an ephemeral port
// that could not be read back.
const defaultMetricsPort = 9090

var (
	// TelemetrySystem receives every counter, gauge and histogram. Nil
	// disables emission.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint on the loopback-proxied
	// metrics port.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free port)
// and installs the telemetry system that feeds it. The namespace prefixes
// every metric name and defaults to serviceName.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter on port %d: %w", port, err)
	}

	bound, err := resolvePort(exporter.GetAddr())
	switch {
	case err == nil:
	case port != 0:
		bound = port
	default:
		bound = defaultMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return fmt.Errorf("create telemetry system: %w", err)
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	metricsPort = bound
	return nil
}

// ShutdownMetrics stops the exporter and disables emission.
func ShutdownMetrics() error {
	TelemetrySystem = nil
	exporter := PrometheusExporter
	PrometheusExporter = nil
	if exporter == nil {
		return nil
	}
	return exporter.Stop()
}

// GetMetricsPort returns the port the exporter is bound to, or 0 before
// InitMetrics.
func GetMetricsPort() int {
	return metricsPort
}

// MetricsScrapeURL is the exporter endpoint as seen from this process.
func MetricsScrapeURL() string {
	port := metricsPort
	if port == 0 {
		port = defaultMetricsPort
	}
	return fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
