// Package apikey checks a static shared secret presented in a request header.
package apikey

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// DefaultHeader carries the API key.
const DefaultHeader = "X-API-Key"

// ErrInvalidKey covers both a missing and a wrong key.
var ErrInvalidKey = errors.New("invalid or missing api key")

// Checker compares the configured key against the request header. The
// configured and supplied values are never logged or echoed.
type Checker struct {
	header string
	key    []byte
}

// New creates a checker. An empty header uses DefaultHeader.
func New(header, key string) (*Checker, error) {
	if key == "" {
		return nil, errors.New("api key must not be empty")
	}
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultHeader
	}
	return &Checker{header: header, key: []byte(key)}, nil
}

// Header returns the header name the checker reads.
func (c *Checker) Header() string {
	return c.header
}

// Check returns ErrInvalidKey unless the header matches in constant time.
// A nil checker admits every request.
func (c *Checker) Check(r *http.Request) error {
	if c == nil {
		return nil
	}
	supplied := []byte(r.Header.Get(c.header))
	if subtle.ConstantTimeCompare(supplied, c.key) != 1 {
		return ErrInvalidKey
	}
	return nil
}
