package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBackendUnavailable wraps every transport or protocol failure of a
	// counter backend. The limiter absorbs it; it never reaches a caller.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")

	// ErrNoScript reports that the store no longer has the counting script
	// cached under its digest.
	ErrNoScript = errors.New("rate limit script not loaded")
)

// Backend counts events per client key and window bucket.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Increment counts one event for clientKey in bucket and returns the
	// post-increment count. ttl is the window length; backends that expire
	// keys use it as the key lifetime.
	Increment(ctx context.Context, clientKey string, bucket int64, ttl time.Duration) (int64, error)

	// Ping checks that the backend can serve increments.
	Ping(ctx context.Context) error

	Close() error
}

// Inspector is implemented by backends whose counters can be read and
// cleared by operators.
type Inspector interface {
	Count(ctx context.Context, clientKey string, bucket int64) (int64, error)
	Reset(ctx context.Context, clientKey string, bucket int64) (bool, error)
}
