package guard

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/metrics"
)

// ErrBodyTooLarge is returned by a guarded request body once the ceiling
// has been passed.
var ErrBodyTooLarge = errors.New("request body exceeds limit")

// RequestSize rejects mutating requests under pathPrefix whose body exceeds
// maxBytes. A declared Content-Length over the ceiling is rejected before
// the body is read; streamed bodies are counted and cut off at maxBytes+1.
// The handler's response is held until it returns so an oversized body
// always produces the size-limit response.
func RequestSize(maxBytes int64, pathPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes <= 0 || !guarded(r, pathPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			declared := int64(-1)
			if raw := strings.TrimSpace(r.Header.Get("Content-Length")); raw != "" {
				n, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || n < 0 {
					metrics.RecordGuardRejection(GuardRequestSize, apperrors.CodeInvalidInput)
					apperrors.RespondWithEnvelope(w, r, apperrors.NewInvalidInputError("Invalid Content-Length header"))
					return
				}
				declared = n
			} else if r.ContentLength > 0 {
				declared = r.ContentLength
			}

			if declared > maxBytes {
				respondTooLarge(w, r, maxBytes, declared, -1)
				return
			}

			body := &countingBody{rc: r.Body, max: maxBytes}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = body
			}
			buffered := newBufferedWriter(w)

			defer func() {
				if rec := recover(); rec != nil {
					if !body.Exceeded() {
						panic(rec)
					}
				}
				if body.Exceeded() {
					respondTooLarge(w, r, maxBytes, declared, body.Count())
					return
				}
				buffered.flush()
			}()

			next.ServeHTTP(buffered, r)
		})
	}
}

func guarded(r *http.Request, pathPrefix string) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	return pathPrefix == "" || strings.HasPrefix(r.URL.Path, pathPrefix)
}

func respondTooLarge(w http.ResponseWriter, r *http.Request, maxBytes, declared, observed int64) {
	details := map[string]interface{}{
		"max_request_body_bytes": maxBytes,
	}
	if declared >= 0 {
		details["content_length"] = declared
	}
	if observed >= 0 {
		details["request_body_bytes"] = observed
	}
	env := apperrors.NewPayloadTooLargeError("Request body too large").WithDetails(details)
	metrics.RecordGuardRejection(GuardRequestSize, env.Code)
	w.Header().Set("Connection", "close")
	apperrors.RespondWithEnvelope(w, r, env)
}

// countingBody counts bytes read and refuses data past the ceiling.
type countingBody struct {
	rc  io.ReadCloser
	max int64

	mu       sync.Mutex
	count    int64
	exceeded bool
}

func (b *countingBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exceeded {
		return 0, ErrBodyTooLarge
	}
	if allowed := b.max + 1 - b.count; int64(len(p)) > allowed {
		p = p[:allowed]
	}
	n, err := b.rc.Read(p)
	b.count += int64(n)
	if b.count > b.max {
		b.exceeded = true
		return n - int(b.count-b.max), ErrBodyTooLarge
	}
	return n, err
}

func (b *countingBody) Close() error {
	return b.rc.Close()
}

// Exceeded reports whether more than max bytes were offered.
func (b *countingBody) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}

// Count returns the bytes read so far, including the first byte past the ceiling.
func (b *countingBody) Count() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// bufferedWriter holds a handler's status, headers and body until flush.
// Guarded responses are held in memory in full and do not implement
// http.Flusher, so streaming handlers do not belong under the guarded prefix.
type bufferedWriter struct {
	w      http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter(w http.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{w: w, header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flush() {
	dst := b.w.Header()
	for key, values := range b.header {
		dst[key] = values
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	b.w.WriteHeader(status)
	_, _ = b.w.Write(b.body.Bytes())
}
