package config

import (
	"time"
)

// Config represents the complete application configuration.
// Sources are layered in order: built-in defaults, an optional YAML file,
// then CIVIC_ARCHIVE_* environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health" json:"health"`
	Security  SecurityConfig  `mapstructure:"security" yaml:"security" json:"security"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level" json:"level"`

	// Profile selects the server logging profile: simple or structured
	Profile string `mapstructure:"profile" yaml:"profile" json:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Port is the dedicated Prometheus exporter port. Metrics are also
	// proxied on the main HTTP port at /metrics.
	Port int `mapstructure:"port" yaml:"port" json:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// SecurityConfig configures the request guards.
type SecurityConfig struct {
	// Strict refuses to start unless an authentication guard and rate
	// limiting are both enabled.
	Strict         bool              `mapstructure:"strict" yaml:"strict" json:"strict"`
	APIKey         APIKeyConfig      `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	JWT            JWTConfig         `mapstructure:"jwt" yaml:"jwt" json:"jwt"`
	TrustedProxies []string          `mapstructure:"trusted_proxies" yaml:"trusted_proxies" json:"trusted_proxies"`
	RequestSize    RequestSizeConfig `mapstructure:"request_size" yaml:"request_size" json:"request_size"`
}

// APIKeyConfig configures the static API key check.
type APIKeyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Header  string `mapstructure:"header" yaml:"header" json:"header"`
	Key     string `mapstructure:"key" yaml:"key" json:"key"`
}

// JWTConfig configures bearer token verification and scope policy.
type JWTConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Secret     string `mapstructure:"secret" yaml:"secret" json:"secret"`
	Algorithm  string `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`
	ReadScope  string `mapstructure:"read_scope" yaml:"read_scope" json:"read_scope"`
	WriteScope string `mapstructure:"write_scope" yaml:"write_scope" json:"write_scope"`
}

// RequestSizeConfig configures the request body ceiling.
type RequestSizeConfig struct {
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	PathPrefix   string `mapstructure:"path_prefix" yaml:"path_prefix" json:"path_prefix"`
}

// RateLimitConfig configures the fixed-window rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the per-window quota; zero disables limiting.
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	WindowSeconds     int           `mapstructure:"window_seconds" yaml:"window_seconds" json:"window_seconds"`
	Backend           string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	KeyPrefix         string        `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	FailOpen          bool          `mapstructure:"fail_open" yaml:"fail_open" json:"fail_open"`
	FailureCooldown   time.Duration `mapstructure:"failure_cooldown" yaml:"failure_cooldown" json:"failure_cooldown"`
	Redis             RedisConfig   `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// RedisConfig configures the shared counter store.
type RedisConfig struct {
	URL        string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	UseScripts bool          `mapstructure:"use_scripts" yaml:"use_scripts" json:"use_scripts"`
}

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Defaults returns the built-in configuration as flat viper keys.
func Defaults() map[string]any {
	return map[string]any{
		"server.host":             "localhost",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",

		"logging.level":   "info",
		"logging.profile": "structured",

		"metrics.enabled": true,
		"metrics.port":    9090,

		"health.enabled": true,

		"security.strict":                      false,
		"security.api_key.enabled":             false,
		"security.api_key.header":              "X-API-Key",
		"security.api_key.key":                 "",
		"security.jwt.enabled":                 false,
		"security.jwt.secret":                  "",
		"security.jwt.algorithm":               "HS256",
		"security.jwt.read_scope":              "archive:read",
		"security.jwt.write_scope":             "archive:write",
		"security.trusted_proxies":             []string{},
		"security.request_size.max_body_bytes": 1048576,
		"security.request_size.path_prefix":    "/api/",

		"rate_limit.requests_per_minute": 0,
		"rate_limit.window_seconds":      60,
		"rate_limit.backend":             BackendMemory,
		"rate_limit.key_prefix":          "civic_archive:ratelimit",
		"rate_limit.fail_open":           true,
		"rate_limit.failure_cooldown":    "5s",
		"rate_limit.redis.url":           "",
		"rate_limit.redis.timeout":       "200ms",
		"rate_limit.redis.use_scripts":   true,
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.Security.APIKey.Key != "" {
		c.Security.APIKey.Key = redactedValue
	}
	if c.Security.JWT.Secret != "" {
		c.Security.JWT.Secret = redactedValue
	}
	if c.RateLimit.Redis.URL != "" {
		c.RateLimit.Redis.URL = redactURL(c.RateLimit.Redis.URL)
	}
	c.Security.TrustedProxies = append([]string(nil), c.Security.TrustedProxies...)
	return c
}
