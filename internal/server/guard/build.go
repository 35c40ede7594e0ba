package guard

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	"github.com/leeyeon3724/civic-archive-api/internal/security/apikey"
	"github.com/leeyeon3724/civic-archive-api/internal/security/identity"
	"github.com/leeyeon3724/civic-archive-api/internal/security/ratelimit"
	"github.com/leeyeon3724/civic-archive-api/internal/security/token"
)

type buildOptions struct {
	client    ratelimit.Client
	clock     func() time.Time
	monotonic func() time.Duration
	logger    *logging.Logger
}

// Option customizes New.
type Option func(*buildOptions)

// WithStoreClient supplies the shared store client instead of dialing
// rate_limit.redis.url.
func WithStoreClient(client ratelimit.Client) Option {
	return func(o *buildOptions) { o.client = client }
}

// WithClocks overrides the wall and monotonic clocks.
func WithClocks(wall func() time.Time, monotonic func() time.Duration) Option {
	return func(o *buildOptions) {
		o.clock = wall
		o.monotonic = monotonic
	}
}

// WithLogger sets the logger used by the chain and the limiter.
func WithLogger(logger *logging.Logger) Option {
	return func(o *buildOptions) { o.logger = logger }
}

// New builds the guard chain described by cfg. The configuration is
// expected to have passed Validate.
func New(cfg *config.Config, opts ...Option) (*Chain, error) {
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}

	chain := &Chain{
		MaxBodyBytes: cfg.Security.RequestSize.MaxBodyBytes,
		PathPrefix:   cfg.Security.RequestSize.PathPrefix,
		Logger:       o.logger,
	}

	if cfg.Security.APIKey.Enabled {
		checker, err := apikey.New(cfg.Security.APIKey.Header, cfg.Security.APIKey.Key)
		if err != nil {
			return nil, fmt.Errorf("api key guard: %w", err)
		}
		chain.APIKey = checker
	}

	if cfg.Security.JWT.Enabled {
		tokenOpts := []token.Option{}
		if o.clock != nil {
			tokenOpts = append(tokenOpts, token.WithClock(o.clock))
		}
		authorizer, err := token.NewAuthorizer(cfg.Security.JWT.Secret, token.Policy{
			ReadScope:  cfg.Security.JWT.ReadScope,
			WriteScope: cfg.Security.JWT.WriteScope,
		}, tokenOpts...)
		if err != nil {
			return nil, fmt.Errorf("token guard: %w", err)
		}
		chain.Tokens = authorizer
	}

	proxies, err := identity.ParseTrustedProxies(cfg.Security.TrustedProxies)
	if err != nil {
		return nil, err
	}
	chain.Resolver = identity.NewResolver(proxies)

	limiter, err := newLimiter(cfg.RateLimit, o)
	if err != nil {
		return nil, err
	}
	chain.Limiter = limiter

	return chain, nil
}

// NewLimiter builds the rate limiter and its backend from cfg.
func NewLimiter(cfg config.RateLimitConfig, opts ...Option) (*ratelimit.Limiter, error) {
	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return newLimiter(cfg, o)
}

func newLimiter(cfg config.RateLimitConfig, o *buildOptions) (*ratelimit.Limiter, error) {
	quota, err := ratelimit.NewQuota(cfg.RequestsPerMinute, cfg.WindowSeconds, cfg.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	backend, err := newBackend(cfg, quota, o)
	if err != nil {
		return nil, err
	}

	return ratelimit.NewLimiter(quota, backend,
		ratelimit.WithFailOpen(cfg.FailOpen),
		ratelimit.WithCooldown(cfg.FailureCooldown),
		ratelimit.WithClock(o.clock),
		ratelimit.WithMonotonic(o.monotonic),
		ratelimit.WithLogger(o.logger),
	), nil
}

func newBackend(cfg config.RateLimitConfig, quota ratelimit.Quota, o *buildOptions) (ratelimit.Backend, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return ratelimit.NewMemoryBackend(ratelimit.DefaultMaxEntries), nil
	case config.BackendRedis:
		client := o.client
		if client == nil && quota.Enabled() {
			c, err := ratelimit.NewRedisClient(cfg.Redis.URL, cfg.Redis.Timeout)
			if err != nil {
				return nil, fmt.Errorf("rate limit backend: %w", err)
			}
			client = c
		}
		return ratelimit.NewRedisBackend(client, quota,
			ratelimit.WithStoreTimeout(cfg.Redis.Timeout),
			ratelimit.WithScripts(cfg.Redis.UseScripts),
		), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
