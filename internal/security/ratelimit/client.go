package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStoreTimeout bounds every call to the shared store.
const DefaultStoreTimeout = 200 * time.Millisecond

// Client is the subset of the shared store used for counting. Errors are
// returned as-is except a missing script, which is reported as ErrNoScript.
type Client interface {
	ScriptLoad(ctx context.Context, script string) (string, error)
	EvalSha(ctx context.Context, sha string, keys []string, args ...any) (int64, error)
	Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error)
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisClient struct {
	rdb redis.UniversalClient
}

// NewRedisClient connects to the store at url with dial, read and write
// timeouts set to timeout. Client-side retries are disabled.
func NewRedisClient(url string, timeout time.Duration) (Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	opts.MaxRetries = -1
	return WrapRedis(redis.NewClient(opts)), nil
}

// WrapRedis adapts an existing go-redis client.
func WrapRedis(rdb redis.UniversalClient) Client {
	return &redisClient{rdb: rdb}
}

func (c *redisClient) ScriptLoad(ctx context.Context, script string) (string, error) {
	return c.rdb.ScriptLoad(ctx, script).Result()
}

func (c *redisClient) EvalSha(ctx context.Context, sha string, keys []string, args ...any) (int64, error) {
	n, err := c.rdb.EvalSha(ctx, sha, keys, args...).Int64()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		return 0, fmt.Errorf("%w: %v", ErrNoScript, err)
	}
	return n, err
}

func (c *redisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error) {
	return c.rdb.Eval(ctx, script, keys, args...).Int64()
}

func (c *redisClient) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (c *redisClient) Get(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (c *redisClient) Del(ctx context.Context, key string) (int64, error) {
	return c.rdb.Del(ctx, key).Result()
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}

// UnavailableClient is a Client that fails every call. It stands in for the
// shared store when no connection should be opened.
type UnavailableClient struct{}

var errNoStore = errors.New("no shared store configured")

func (UnavailableClient) ScriptLoad(context.Context, string) (string, error) { return "", errNoStore }

func (UnavailableClient) EvalSha(context.Context, string, []string, ...any) (int64, error) {
	return 0, errNoStore
}

func (UnavailableClient) Eval(context.Context, string, []string, ...any) (int64, error) {
	return 0, errNoStore
}

func (UnavailableClient) IncrWithExpire(context.Context, string, time.Duration) (int64, error) {
	return 0, errNoStore
}

func (UnavailableClient) Get(context.Context, string) (int64, error) { return 0, errNoStore }
func (UnavailableClient) Del(context.Context, string) (int64, error) { return 0, errNoStore }
func (UnavailableClient) Ping(context.Context) error                 { return errNoStore }
func (UnavailableClient) Close() error                               { return nil }
