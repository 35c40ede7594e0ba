package middleware

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leeyeon3724/civic-archive-api/internal/observability"
)

// statusRecorder captures the status code and bytes written.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

// countingBody counts request body bytes actually consumed downstream.
type countingBody struct {
	io.ReadCloser
	read int64
}

func (c *countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.read += int64(n)
	return n, err
}

// guardStatuses are the responses produced by the request guards.
var guardStatuses = map[int]struct{}{
	http.StatusUnauthorized:          {},
	http.StatusForbidden:             {},
	http.StatusRequestEntityTooLarge: {},
	http.StatusTooManyRequests:       {},
}

// errorClass labels a failed response: guard rejections are kept apart from
// other client and server errors.
func errorClass(status int) string {
	if _, ok := guardStatuses[status]; ok {
		return "guard_rejection"
	}
	if status >= 500 {
		return "server_error"
	}
	return "client_error"
}

// getEndpointPattern returns the chi route pattern, or a coarse bucket for
// requests that never matched a route.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch {
	case path == "/" || path == "/version" || path == "/metrics":
		return path
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case strings.HasPrefix(path, "/api/"):
		// The size guard rejects before routing.
		return "/api/*"
	default:
		return "/unknown"
	}
}

// requestBytes prefers the observed body size and falls back to the
// declared Content-Length when the handler never read the body.
func requestBytes(r *http.Request, body *countingBody) int64 {
	if body != nil && body.read > 0 {
		return body.read
	}
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	return 0
}

// RequestMetrics emits per-request counters, durations and sizes labelled
// by route pattern, and logs one line per request.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		var body *countingBody
		if r.Body != nil && r.Body != http.NoBody {
			body = &countingBody{ReadCloser: r.Body}
			r.Body = body
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(rec.status)
		received := requestBytes(r, body)

		route := map[string]string{"method": r.Method, "endpoint": endpoint}
		labels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}

		_ = sys.Counter("http_requests_total", 1, labels)
		_ = sys.Histogram("http_request_duration_ms", duration, labels)
		_ = sys.Gauge("http_request_size_bytes", float64(received), route)
		_ = sys.Gauge("http_response_size_bytes", float64(rec.written), route)

		if rec.status >= 400 {
			_ = sys.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorClass(rec.status),
			})
		}

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", rec.status),
				zap.Duration("duration", duration),
				zap.Int64("request_size", received),
				zap.Int64("response_size", rec.written),
				zap.String("requestID", GetRequestID(r.Context())),
			)
		}
	})
}
