package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client that records every call.
type fakeClient struct {
	mu       sync.Mutex
	counts   map[string]int64
	ttls     map[string]time.Duration
	scripts  map[string]string
	calls    []string
	failWith error
	noScript int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		counts:  make(map[string]int64),
		ttls:    make(map[string]time.Duration),
		scripts: make(map[string]string),
	}
}

func (f *fakeClient) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failWith
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) ScriptLoad(_ context.Context, script string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("script_load"); err != nil {
		return "", err
	}
	sha := fmt.Sprintf("sha-%d", len(f.scripts)+1)
	f.scripts[sha] = script
	return sha, nil
}

func (f *fakeClient) EvalSha(_ context.Context, sha string, keys []string, args ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("evalsha"); err != nil {
		return 0, err
	}
	if f.noScript > 0 {
		f.noScript--
		return 0, fmt.Errorf("%w: NOSCRIPT No matching script", ErrNoScript)
	}
	if _, ok := f.scripts[sha]; !ok {
		return 0, fmt.Errorf("%w: unknown sha", ErrNoScript)
	}
	return f.incr(keys[0], args[0].(int64)), nil
}

func (f *fakeClient) Eval(_ context.Context, script string, keys []string, args ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("eval"); err != nil {
		return 0, err
	}
	if script != incrementScript {
		return 0, errors.New("unexpected script")
	}
	return f.incr(keys[0], args[0].(int64)), nil
}

func (f *fakeClient) IncrWithExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("incr"); err != nil {
		return 0, err
	}
	return f.incr(key, int64(ttl/time.Second)), nil
}

func (f *fakeClient) incr(key string, ttlSeconds int64) int64 {
	f.counts[key]++
	if f.counts[key] == 1 {
		f.ttls[key] = time.Duration(ttlSeconds) * time.Second
	}
	return f.counts[key]
}

func (f *fakeClient) Get(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get"); err != nil {
		return 0, err
	}
	return f.counts[key], nil
}

func (f *fakeClient) Del(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("del"); err != nil {
		return 0, err
	}
	if _, ok := f.counts[key]; !ok {
		return 0, nil
	}
	delete(f.counts, key)
	return 1, nil
}

func (f *fakeClient) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("ping")
}

func (f *fakeClient) Close() error { return nil }

func testQuota(t *testing.T, rpm int) Quota {
	t.Helper()
	q, err := NewQuota(rpm, 60, "test")
	require.NoError(t, err)
	return q
}

func TestRedisBackendScriptIncrement(t *testing.T) {
	client := newFakeClient()
	b := NewRedisBackend(client, testQuota(t, 5))
	ctx := context.Background()

	n, err := b.Increment(ctx, "10.0.0.1", 42, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = b.Increment(ctx, "10.0.0.1", 42, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, []string{"script_load", "evalsha", "evalsha"}, client.calls, "script digest is cached")
	assert.Equal(t, time.Minute, client.ttls["test:42:10.0.0.1"])
}

func TestRedisBackendRecoversFromMissingScript(t *testing.T) {
	client := newFakeClient()
	client.noScript = 1
	b := NewRedisBackend(client, testQuota(t, 5))

	n, err := b.Increment(context.Background(), "c", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"script_load", "evalsha", "eval"}, client.calls)
}

func TestRedisBackendWithoutScripts(t *testing.T) {
	client := newFakeClient()
	b := NewRedisBackend(client, testQuota(t, 5), WithScripts(false))

	n, err := b.Increment(context.Background(), "c", 1, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []string{"incr"}, client.calls)
	assert.Equal(t, 30*time.Second, client.ttls["test:1:c"])
}

func TestRedisBackendWrapsTransportErrors(t *testing.T) {
	client := newFakeClient()
	client.failWith = errors.New("dial tcp: connection refused")
	b := NewRedisBackend(client, testQuota(t, 5))

	_, err := b.Increment(context.Background(), "c", 1, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	err = b.Ping(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRedisBackendInspectAndReset(t *testing.T) {
	client := newFakeClient()
	b := NewRedisBackend(client, testQuota(t, 5))
	ctx := context.Background()

	_, err := b.Increment(ctx, "c", 3, time.Minute)
	require.NoError(t, err)

	count, err := b.Count(ctx, "c", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	removed, err := b.Reset(ctx, "c", 3)
	require.NoError(t, err)
	assert.True(t, removed)

	count, err = b.Count(ctx, "c", 3)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUnavailableClientAlwaysFails(t *testing.T) {
	b := NewRedisBackend(nil, testQuota(t, 5))
	_, err := b.Increment(context.Background(), "c", 1, time.Minute)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.NoError(t, b.Close())
}
