package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leeyeon3724/civic-archive-api/internal/security/identity"
)

// Validate reports every configuration problem that must stop startup.
func (c *Config) Validate() error {
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	sec := c.Security
	if sec.APIKey.Enabled && strings.TrimSpace(sec.APIKey.Key) == "" {
		fail("security.api_key.key is required when security.api_key.enabled is true")
	}
	if sec.APIKey.Enabled && strings.TrimSpace(sec.APIKey.Header) == "" {
		fail("security.api_key.header must not be empty")
	}
	if sec.JWT.Enabled && strings.TrimSpace(sec.JWT.Secret) == "" {
		fail("security.jwt.secret is required when security.jwt.enabled is true")
	}
	if alg := strings.TrimSpace(sec.JWT.Algorithm); alg != "" && !strings.EqualFold(alg, "HS256") {
		fail("security.jwt.algorithm must be HS256, got %q", alg)
	}
	if _, err := identity.ParseTrustedProxies(sec.TrustedProxies); err != nil {
		fail("security.trusted_proxies: %v", err)
	}
	if sec.RequestSize.MaxBodyBytes <= 0 {
		fail("security.request_size.max_body_bytes must be > 0, got %d", sec.RequestSize.MaxBodyBytes)
	}

	rl := c.RateLimit
	if rl.RequestsPerMinute < 0 {
		fail("rate_limit.requests_per_minute must be >= 0, got %d", rl.RequestsPerMinute)
	}
	if rl.WindowSeconds < 1 {
		fail("rate_limit.window_seconds must be >= 1, got %d", rl.WindowSeconds)
	}
	if rl.FailureCooldown <= 0 {
		fail("rate_limit.failure_cooldown must be > 0, got %s", rl.FailureCooldown)
	}
	switch rl.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(rl.Redis.URL) == "" {
			fail("rate_limit.redis.url is required when rate_limit.backend is redis")
		}
		if rl.Redis.Timeout <= 0 || rl.Redis.Timeout >= time.Second {
			fail("rate_limit.redis.timeout must be between 0 and 1s, got %s", rl.Redis.Timeout)
		}
	default:
		fail("rate_limit.backend must be %q or %q, got %q", BackendMemory, BackendRedis, rl.Backend)
	}

	if sec.Strict {
		if !sec.APIKey.Enabled && !sec.JWT.Enabled {
			fail("security.strict requires security.api_key.enabled or security.jwt.enabled")
		}
		if rl.RequestsPerMinute <= 0 {
			fail("security.strict requires rate_limit.requests_per_minute > 0")
		}
	}

	return errors.Join(problems...)
}
