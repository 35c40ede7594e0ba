package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	apperrors "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/server/guard"
	"github.com/leeyeon3724/civic-archive-api/internal/server/handlers"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1"},
		Security: config.SecurityConfig{
			APIKey:      config.APIKeyConfig{Enabled: true, Header: "X-API-Key", Key: "s3cret"},
			RequestSize: config.RequestSizeConfig{MaxBodyBytes: 64, PathPrefix: "/api/"},
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerMinute: 2,
			WindowSeconds:     60,
			Backend:           config.BackendMemory,
			KeyPrefix:         "test:ratelimit",
			FailOpen:          true,
			FailureCooldown:   5 * time.Second,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	chain, err := guard.New(cfg, guard.WithClocks(
		func() time.Time { return time.Unix(1_700_000_080, 0) },
		func() time.Duration { return time.Second },
	))
	require.NoError(t, err)

	health := handlers.NewHealthManager("test")
	health.RegisterReadinessChecker("rate_limit_backend", chain.Limiter)

	srv := New(cfg.Server, chain, health)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec).Error.Code)
}

func TestServerGuardsAPIRoutes(t *testing.T) {
	srv := newTestServer(t, testConfig())

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
	assert.Equal(t, body.Error.RequestID, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(`{"n":1}`))
	req.Header.Set("X-API-Key", "s3cret")
	rec = do(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"you_sent":{"n":1}}`, rec.Body.String())
}

func TestServerHealthRoutesAreUnguarded(t *testing.T) {
	srv := newTestServer(t, testConfig())

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/startup", "/version"} {
		rec := do(srv, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerSizeGuardRunsBeforeAuthentication(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/echo", strings.NewReader(strings.Repeat("x", 1000)))
	rec := do(srv, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", body.Error.Code)
	assert.EqualValues(t, 64, body.Error.Details["max_request_body_bytes"])
}

func TestServerStreamedOversizeEcho(t *testing.T) {
	srv := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/echo", io.NopCloser(strings.NewReader(strings.Repeat("x", 65))))
	req.Header.Set("X-API-Key", "s3cret")
	rec := do(srv, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.EqualValues(t, 65, decode(t, rec).Error.Details["request_body_bytes"])
}

func TestServerRateLimitsPerClient(t *testing.T) {
	srv := newTestServer(t, testConfig())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
		req.Header.Set("X-API-Key", "s3cret")
		req.Header.Set("X-Forwarded-For", "192.0.2.77")
		statuses = append(statuses, do(srv, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestServerReadinessReflectsBackend(t *testing.T) {
	cfg := testConfig()
	chain, err := guard.New(cfg)
	require.NoError(t, err)

	health := handlers.NewHealthManager("test")
	health.RegisterReadinessChecker("rate_limit_backend", handlers.CheckerFunc(func(context.Context) error {
		return errors.New("store down")
	}))
	srv := New(cfg.Server, chain, health)

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decode(t, rec).Error.Code)

	rec = do(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
