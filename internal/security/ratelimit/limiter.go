package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leeyeon3724/civic-archive-api/internal/metrics"
)

// DefaultFailureCooldown is how long a failed backend is bypassed.
const DefaultFailureCooldown = 5 * time.Second

// Outcome classifies a limiter decision.
type Outcome string

const (
	OutcomeDisabled   Outcome = "disabled"
	OutcomeAllowed    Outcome = "allowed"
	OutcomeLimited    Outcome = "limited"
	OutcomeFailOpen   Outcome = "fail_open"
	OutcomeFailClosed Outcome = "fail_closed"
)

// Decision is the result of counting one request.
type Decision struct {
	Allowed bool
	Outcome Outcome
	// Count is the post-increment count; zero when the backend was not consulted.
	Count int64
	// RetryAfter is the time left in the current window.
	RetryAfter time.Duration
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	BackendCalls int64
	Degradations int64
}

// Limiter is a fixed-window rate limiter over a Backend. When the backend
// fails it enters a cooldown during which the backend is not contacted and
// the configured fail-open or fail-closed decision is returned.
type Limiter struct {
	quota    Quota
	backend  Backend
	failOpen bool
	cooldown time.Duration

	clock     func() time.Time
	monotonic func() time.Duration
	logger    *logging.Logger

	degradedUntil atomic.Int64
	backendCalls  atomic.Int64
	degradations  atomic.Int64

	degradedLog rate.Sometimes
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailOpen selects the decision returned while the backend is degraded.
func WithFailOpen(failOpen bool) Option {
	return func(l *Limiter) { l.failOpen = failOpen }
}

// WithCooldown sets the degradation cooldown.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cooldown = d
		}
	}
}

// WithClock sets the wall clock used for window buckets.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithMonotonic sets the monotonic clock used for the cooldown. It returns
// the elapsed time since an arbitrary fixed origin.
func WithMonotonic(monotonic func() time.Duration) Option {
	return func(l *Limiter) {
		if monotonic != nil {
			l.monotonic = monotonic
		}
	}
}

// WithLogger sets the logger for degradation events.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// NewLimiter creates a limiter. Defaults: fail open, DefaultFailureCooldown,
// system clocks.
func NewLimiter(quota Quota, backend Backend, opts ...Option) *Limiter {
	origin := time.Now()
	l := &Limiter{
		quota:     quota,
		backend:   backend,
		failOpen:  true,
		cooldown:  DefaultFailureCooldown,
		clock:     time.Now,
		monotonic: func() time.Duration { return time.Since(origin) },

		degradedLog: rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request for clientKey and reports whether it is within quota.
func (l *Limiter) Allow(ctx context.Context, clientKey string) bool {
	return l.Decide(ctx, clientKey).Allowed
}

// Decide counts one request for clientKey and returns the full decision.
func (l *Limiter) Decide(ctx context.Context, clientKey string) Decision {
	if l == nil || !l.quota.Enabled() || l.backend == nil {
		return Decision{Allowed: true, Outcome: OutcomeDisabled}
	}

	now := l.clock()
	retryAfter := l.quota.Remaining(now)

	if l.inCooldown() {
		d := l.degradedDecision(retryAfter)
		l.degradedLog.Do(func() {
			l.debug("Rate limit backend in cooldown; serving fallback decision",
				zap.String("backend", l.backend.Name()),
				zap.String("outcome", string(d.Outcome)),
			)
		})
		metrics.RecordRateLimitDecision(l.backend.Name(), string(d.Outcome))
		return d
	}

	l.backendCalls.Add(1)
	count, err := l.backend.Increment(ctx, clientKey, l.quota.Bucket(now), l.quota.Window())
	if err != nil {
		l.degrade(err)
		d := l.degradedDecision(retryAfter)
		metrics.RecordRateLimitDecision(l.backend.Name(), string(d.Outcome))
		return d
	}
	l.degradedUntil.Store(0)

	d := Decision{Allowed: true, Outcome: OutcomeAllowed, Count: count, RetryAfter: retryAfter}
	if count > int64(l.quota.RequestsPerMinute) {
		d.Allowed = false
		d.Outcome = OutcomeLimited
	}
	metrics.RecordRateLimitDecision(l.backend.Name(), string(d.Outcome))
	return d
}

// Degraded reports whether the limiter is currently bypassing its backend.
func (l *Limiter) Degraded() bool {
	return l != nil && l.inCooldown()
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	return Stats{
		BackendCalls: l.backendCalls.Load(),
		Degradations: l.degradations.Load(),
	}
}

// Quota returns the configured quota.
func (l *Limiter) Quota() Quota {
	if l == nil {
		return Quota{}
	}
	return l.quota
}

// BackendName returns the backend name, or "none".
func (l *Limiter) BackendName() string {
	if l == nil || l.backend == nil {
		return "none"
	}
	return l.backend.Name()
}

// Inspector returns the backend's operator view when it has one.
func (l *Limiter) Inspector() (Inspector, bool) {
	if l == nil || l.backend == nil {
		return nil, false
	}
	in, ok := l.backend.(Inspector)
	return in, ok
}

// CheckHealth probes the backend. A disabled limiter is always healthy.
func (l *Limiter) CheckHealth(ctx context.Context) error {
	if l == nil || !l.quota.Enabled() || l.backend == nil {
		return nil
	}
	return l.backend.Ping(ctx)
}

// Close releases the backend.
func (l *Limiter) Close() error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

func (l *Limiter) inCooldown() bool {
	until := l.degradedUntil.Load()
	return until != 0 && int64(l.monotonic()) < until
}

// degrade starts one cooldown window. Concurrent failures may only extend it.
func (l *Limiter) degrade(err error) {
	until := int64(l.monotonic() + l.cooldown)
	for {
		current := l.degradedUntil.Load()
		if current >= until {
			break
		}
		if l.degradedUntil.CompareAndSwap(current, until) {
			break
		}
	}
	l.degradations.Add(1)
	metrics.RecordRateLimitDegradation(l.backend.Name())

	if l.logger != nil {
		l.logger.Warn("Rate limit backend unavailable; entering cooldown",
			zap.String("backend", l.backend.Name()),
			zap.Bool("fail_open", l.failOpen),
			zap.Duration("cooldown", l.cooldown),
			zap.Error(err),
		)
	}
}

func (l *Limiter) degradedDecision(retryAfter time.Duration) Decision {
	if l.failOpen {
		return Decision{Allowed: true, Outcome: OutcomeFailOpen, RetryAfter: retryAfter}
	}
	return Decision{Allowed: false, Outcome: OutcomeFailClosed, RetryAfter: retryAfter}
}

func (l *Limiter) debug(msg string, fields ...zap.Field) {
	if l.logger != nil {
		l.logger.Debug(msg, fields...)
	}
}
