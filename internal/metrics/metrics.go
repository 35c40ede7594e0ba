// Package metrics names the service's telemetry series and records them
// through observability.TelemetrySystem. Every recorder is a no-op while
// telemetry is disabled.
package metrics

import (
	"strconv"
	"time"

	"github.com/leeyeon3724/civic-archive-api/internal/observability"
)

// Error and lifecycle series
const (
	ErrorsTotal         = "errors_total"
	ErrorsByEndpoint    = "errors_by_endpoint"
	PanicsTotal         = "panics_total"
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"
	ConfigReloadsTotal  = "app_config_reloads_total"
)

func count(name string, tags map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, tags)
	}
}

// RecordError counts an error response by code and HTTP status.
func RecordError(errorCode string, httpStatus int) {
	count(ErrorsTotal, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordErrorByEndpoint counts an error response by route pattern.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	count(ErrorsByEndpoint, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotal, nil)
}

// RecordHealthCheck counts one checker run and its duration.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	count(HealthCheckTotal, map[string]string{"check": checkName, "status": status})

	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
	}
}

// RecordConfigReload counts a SIGHUP reload attempt; outcome is "accepted",
// "invalid" or "unchanged".
func RecordConfigReload(outcome string) {
	count(ConfigReloadsTotal, map[string]string{"outcome": outcome})
}

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}
