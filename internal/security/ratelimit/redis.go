package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// incrementScript counts one event and sets the key lifetime only when the
// counter is created, so a key never outlives its window.
const incrementScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// RedisBackend counts events in a shared store through Client.
type RedisBackend struct {
	client     Client
	quota      Quota
	timeout    time.Duration
	useScripts bool

	sha atomic.Pointer[string]
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(d time.Duration) RedisOption {
	return func(b *RedisBackend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithScripts toggles server-side scripting. When disabled the backend uses
// INCR followed by EXPIRE on a new key.
func WithScripts(enabled bool) RedisOption {
	return func(b *RedisBackend) { b.useScripts = enabled }
}

// NewRedisBackend creates a backend over client. Keys are namespaced by the
// quota's key prefix.
func NewRedisBackend(client Client, quota Quota, opts ...RedisOption) *RedisBackend {
	if client == nil {
		client = UnavailableClient{}
	}
	b := &RedisBackend{
		client:     client,
		quota:      quota,
		timeout:    DefaultStoreTimeout,
		useScripts: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

// Increment implements Backend. Every failure is reported as
// ErrBackendUnavailable. A missing script is re-submitted inline once.
func (b *RedisBackend) Increment(ctx context.Context, clientKey string, bucket int64, ttl time.Duration) (int64, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()

	key := b.quota.Key(bucket, clientKey)
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	if !b.useScripts {
		n, err := b.client.IncrWithExpire(ctx, key, time.Duration(ttlSeconds)*time.Second)
		if err != nil {
			return 0, unavailable("incr", err)
		}
		return n, nil
	}

	sha, err := b.scriptSHA(ctx)
	if err != nil {
		return 0, unavailable("script load", err)
	}

	n, err := b.client.EvalSha(ctx, sha, []string{key}, ttlSeconds)
	if errors.Is(err, ErrNoScript) {
		n, err = b.client.Eval(ctx, incrementScript, []string{key}, ttlSeconds)
	}
	if err != nil {
		return 0, unavailable("eval", err)
	}
	return n, nil
}

// Count implements Inspector.
func (b *RedisBackend) Count(ctx context.Context, clientKey string, bucket int64) (int64, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()
	n, err := b.client.Get(ctx, b.quota.Key(bucket, clientKey))
	if err != nil {
		return 0, unavailable("get", err)
	}
	return n, nil
}

// Reset implements Inspector.
func (b *RedisBackend) Reset(ctx context.Context, clientKey string, bucket int64) (bool, error) {
	ctx, cancel := b.callContext(ctx)
	defer cancel()
	n, err := b.client.Del(ctx, b.quota.Key(bucket, clientKey))
	if err != nil {
		return false, unavailable("del", err)
	}
	return n > 0, nil
}

// Ping implements Backend.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := b.callContext(ctx)
	defer cancel()
	if err := b.client.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close implements Backend.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) scriptSHA(ctx context.Context) (string, error) {
	if sha := b.sha.Load(); sha != nil {
		return *sha, nil
	}
	sha, err := b.client.ScriptLoad(ctx, incrementScript)
	if err != nil {
		return "", err
	}
	b.sha.Store(&sha)
	return sha, nil
}

// callContext detaches the call from caller cancellation so an increment
// that reaches the store is not abandoned halfway; the store timeout still
// bounds it.
func (b *RedisBackend) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
}
