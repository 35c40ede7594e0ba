package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaBucket(t *testing.T) {
	q, err := NewQuota(5, 60, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyPrefix, q.KeyPrefix)

	base := time.Unix(6000, 0)
	assert.Equal(t, int64(100), q.Bucket(base))
	assert.Equal(t, int64(100), q.Bucket(base.Add(59*time.Second)))
	assert.Equal(t, int64(101), q.Bucket(base.Add(60*time.Second)))
	assert.Equal(t, 15*time.Second, q.Remaining(base.Add(45*time.Second)))
	assert.Equal(t, "civic_archive:ratelimit:100:10.0.0.1", q.Key(100, "10.0.0.1"))
}

func TestNewQuotaValidation(t *testing.T) {
	_, err := NewQuota(-1, 60, "x")
	require.Error(t, err)

	_, err = NewQuota(1, -5, "x")
	require.Error(t, err)

	q, err := NewQuota(0, 0, ":rl:")
	require.NoError(t, err)
	assert.False(t, q.Enabled())
	assert.Equal(t, DefaultWindowSeconds, q.WindowSeconds)
	assert.Equal(t, "rl", q.KeyPrefix)
}

func TestMemoryBackendCountsPerBucket(t *testing.T) {
	m := NewMemoryBackend(0)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := m.Increment(ctx, "a", 10, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := m.Increment(ctx, "a", 11, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "new bucket starts at 1")

	n, err = m.Increment(ctx, "a", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "stale bucket never moves a key backward")

	n, err = m.Increment(ctx, "b", 11, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// snapshot returns the live entry count and the stored count for key in bucket.
func snapshot(m *MemoryBackend, key string, bucket int64) (int, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || entry.bucket != bucket {
		return len(m.entries), 0
	}
	return len(m.entries), entry.count
}

func TestMemoryBackendPrunesOldEntries(t *testing.T) {
	m := NewMemoryBackend(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Increment(ctx, fmt.Sprintf("old-%d", i), 1, time.Minute)
		require.NoError(t, err)
	}
	_, err := m.Increment(ctx, "prev", 9, time.Minute)
	require.NoError(t, err)
	live, _ := snapshot(m, "prev", 9)
	require.Equal(t, 4, live)

	_, err = m.Increment(ctx, "now", 10, time.Minute)
	require.NoError(t, err)

	live, count := snapshot(m, "prev", 9)
	assert.Equal(t, 2, live, "entries older than the previous window are removed")
	assert.Equal(t, int64(1), count)
}

func TestMemoryBackendConcurrentIncrements(t *testing.T) {
	m := NewMemoryBackend(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Increment(ctx, "shared", 7, time.Minute)
		}()
	}
	wg.Wait()

	_, count := snapshot(m, "shared", 7)
	assert.Equal(t, int64(50), count)
}

func TestMemoryBackendHasNoInspector(t *testing.T) {
	q, err := NewQuota(5, 60, "")
	require.NoError(t, err)

	_, ok := NewLimiter(q, NewMemoryBackend(0)).Inspector()
	assert.False(t, ok, "memory counters are private to the serving process")

	_, ok = NewLimiter(q, NewRedisBackend(newFakeClient(), q)).Inspector()
	assert.True(t, ok)
}
