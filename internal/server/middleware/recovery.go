package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/leeyeon3724/civic-archive-api/internal/metrics"
	"github.com/leeyeon3724/civic-archive-api/internal/observability"
)

// panicBody mirrors the error body written by internal/errors, which this
// package cannot import.
type panicBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// Recovery turns a handler panic into a generic 500. The panic value and
// stack go to the server log only. http.ErrAbortHandler is re-raised so the
// server can abort the connection.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			switch rec {
			case nil:
				return
			case http.ErrAbortHandler:
				panic(rec)
			}
			recoverPanic(w, r, rec)
		}()

		next.ServeHTTP(w, r)
	})
}

func recoverPanic(w http.ResponseWriter, r *http.Request, rec any) {
	requestID := GetRequestID(r.Context())
	metrics.RecordPanic()

	envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", "Internal server error").
		WithCorrelationID(requestID)

	if observability.ServerLogger != nil {
		observability.ServerLogger.Error("Recovered from handler panic",
			zap.String("panic", fmt.Sprint(rec)),
			zap.String("stack_trace", string(debug.Stack())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
		)
	}

	var body panicBody
	body.Error.Code = envelope.Code
	body.Error.Message = envelope.Message
	body.Error.RequestID = envelope.CorrelationID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(body)
}
