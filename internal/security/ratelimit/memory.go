package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries is the soft cap on live client entries in the memory backend.
const DefaultMaxEntries = 4096

type memoryEntry struct {
	bucket int64
	count  int64
}

// MemoryBackend keeps one counter per client key in process memory.
// Counters reset on restart. It does not implement Inspector: its counters
// live in the serving process and no other process can reach them.
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
}

// NewMemoryBackend creates an empty memory backend. maxEntries <= 0 uses
// DefaultMaxEntries.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryBackend{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
	}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Increment implements Backend. A key seen in an older bucket restarts at 1.
func (m *MemoryBackend) Increment(_ context.Context, clientKey string, bucket int64, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Bucket ids never move backward for a key: a caller holding an older
	// bucket counts against the newer one.
	entry, ok := m.entries[clientKey]
	if !ok || entry.bucket < bucket {
		entry = memoryEntry{bucket: bucket, count: 1}
	} else {
		entry.count++
	}
	m.entries[clientKey] = entry

	if len(m.entries) > m.maxEntries {
		m.pruneLocked(bucket)
	}
	return entry.count, nil
}

// pruneLocked drops entries older than the previous window.
func (m *MemoryBackend) pruneLocked(bucket int64) {
	for key, entry := range m.entries {
		if entry.bucket < bucket-1 {
			delete(m.entries, key)
		}
	}
}

// Ping implements Backend.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
