package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultWindowSeconds is the fixed window length when none is configured.
	DefaultWindowSeconds = 60

	// DefaultKeyPrefix namespaces counter keys in the shared store.
	DefaultKeyPrefix = "civic_archive:ratelimit"
)

// Quota is the immutable limit applied to every client key.
// RequestsPerMinute is the number of requests admitted per window; zero
// disables limiting entirely.
type Quota struct {
	RequestsPerMinute int
	WindowSeconds     int
	KeyPrefix         string
}

// NewQuota normalizes and validates a quota.
func NewQuota(requestsPerMinute, windowSeconds int, keyPrefix string) (Quota, error) {
	if requestsPerMinute < 0 {
		return Quota{}, fmt.Errorf("requests per minute must be >= 0, got %d", requestsPerMinute)
	}
	if windowSeconds == 0 {
		windowSeconds = DefaultWindowSeconds
	}
	if windowSeconds < 1 {
		return Quota{}, fmt.Errorf("window seconds must be >= 1, got %d", windowSeconds)
	}
	keyPrefix = strings.Trim(strings.TrimSpace(keyPrefix), ":")
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return Quota{
		RequestsPerMinute: requestsPerMinute,
		WindowSeconds:     windowSeconds,
		KeyPrefix:         keyPrefix,
	}, nil
}

// Enabled reports whether the quota limits anything.
func (q Quota) Enabled() bool {
	return q.RequestsPerMinute > 0
}

// Window returns the window length.
func (q Quota) Window() time.Duration {
	return time.Duration(q.windowSeconds()) * time.Second
}

// Bucket returns the fixed window bucket id for now. All clients share
// bucket boundaries.
func (q Quota) Bucket(now time.Time) int64 {
	secs := now.Unix()
	size := int64(q.windowSeconds())
	bucket := secs / size
	if secs < 0 && secs%size != 0 {
		bucket--
	}
	return bucket
}

// Remaining returns the time left until the bucket containing now closes.
func (q Quota) Remaining(now time.Time) time.Duration {
	size := int64(q.windowSeconds())
	end := time.Unix((q.Bucket(now)+1)*size, 0)
	return end.Sub(now)
}

// Key renders the shared-store key for a client in a bucket.
func (q Quota) Key(bucket int64, clientKey string) string {
	return fmt.Sprintf("%s:%d:%s", q.KeyPrefix, bucket, clientKey)
}

func (q Quota) windowSeconds() int {
	if q.WindowSeconds < 1 {
		return DefaultWindowSeconds
	}
	return q.WindowSeconds
}
