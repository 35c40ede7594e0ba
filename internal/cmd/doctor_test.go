package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	"github.com/leeyeon3724/civic-archive-api/internal/output"
	"github.com/leeyeon3724/civic-archive-api/internal/security/ratelimit"
)

func doctorConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			APIKey:      config.APIKeyConfig{Enabled: true, Header: "X-API-Key", Key: "s3cret"},
			RequestSize: config.RequestSizeConfig{MaxBodyBytes: 1024, PathPrefix: "/api/"},
		},
		RateLimit: config.RateLimitConfig{
			RequestsPerMinute: 60,
			WindowSeconds:     60,
			Backend:           config.BackendMemory,
			KeyPrefix:         "test:ratelimit",
			FailOpen:          true,
			FailureCooldown:   5 * time.Second,
		},
	}
}

func rowByName(t *testing.T, rows []output.CheckRow, name string) output.CheckRow {
	t.Helper()
	for _, row := range rows {
		if row.Name == name {
			return row
		}
	}
	require.Failf(t, "missing row", "no %q row", name)
	return output.CheckRow{}
}

func TestDoctorChecksValidConfig(t *testing.T) {
	rows, err := doctorChecks(doctorConfig())
	require.NoError(t, err)

	assert.Equal(t, output.StatusOK, rowByName(t, rows, "config").Status)
	assert.Equal(t, "header X-API-Key", rowByName(t, rows, "api_key").Detail)
	assert.Equal(t, output.StatusOff, rowByName(t, rows, "token").Status)
	assert.Contains(t, rowByName(t, rows, "rate_limit").Detail, "60 per 60s via memory, fail open")
	assert.Equal(t, "none (peer address only)", rowByName(t, rows, "trusted_proxies").Detail)

	for _, row := range rows {
		assert.NotContains(t, row.Detail, "s3cret", "secrets never reach the report")
	}
}

func TestDoctorChecksReportsEachProblem(t *testing.T) {
	cfg := doctorConfig()
	cfg.Security.APIKey.Key = ""
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.RateLimit.Redis.Timeout = 200 * time.Millisecond

	rows, err := doctorChecks(cfg)
	require.Error(t, err)

	failures := 0
	for _, row := range rows {
		if row.Name == "config" {
			assert.Equal(t, output.StatusFail, row.Status)
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestProbeRateLimitBackend(t *testing.T) {
	cfg := doctorConfig()
	row := probeRateLimitBackend(context.Background(), cfg)
	assert.Equal(t, output.StatusOK, row.Status)
	assert.Contains(t, row.Detail, "memory reachable")

	cfg.RateLimit.RequestsPerMinute = 0
	row = probeRateLimitBackend(context.Background(), cfg)
	assert.Equal(t, output.StatusOff, row.Status)
}

func TestOpenInspectorRefusesUnsharedBackends(t *testing.T) {
	cfg := doctorConfig()
	_, _, err := openInspector(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server memory")

	cfg.RateLimit.RequestsPerMinute = 0
	_, _, err = openInspector(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestCounterStatePairs(t *testing.T) {
	quota, err := ratelimit.NewQuota(5, 60, "test:ratelimit")
	require.NoError(t, err)
	limiter := ratelimit.NewLimiter(quota, ratelimit.NewMemoryBackend(0))
	now := time.Unix(1_700_000_080, 0)

	state := newCounterState(limiter, "203.0.113.7", now, 7)
	assert.Equal(t, int64(0), state.Remaining, "remaining never goes negative")
	assert.Equal(t, quota.Bucket(now), state.Bucket)
	assert.Equal(t, "20s", state.WindowEndsIn)

	cleared := true
	state.Reset = &cleared
	pairs := state.pairs()
	assert.Equal(t, [2]string{"Count", "7 / 5"}, pairs[3])
	assert.Equal(t, [2]string{"Reset", "true"}, pairs[len(pairs)-1])
}
