// Package guard wires the admission-control checks into HTTP middleware.
package guard

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	apperrors "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/metrics"
	"github.com/leeyeon3724/civic-archive-api/internal/security/apikey"
	"github.com/leeyeon3724/civic-archive-api/internal/security/identity"
	"github.com/leeyeon3724/civic-archive-api/internal/security/ratelimit"
	"github.com/leeyeon3724/civic-archive-api/internal/security/token"
)

// Guard names used in logs and metrics.
const (
	GuardAPIKey      = "api_key"
	GuardToken       = "token"
	GuardRateLimit   = "rate_limit"
	GuardRequestSize = "request_size"
)

// Chain runs the API key check, token authorization and rate limiting in
// that order. The first rejection ends the request.
type Chain struct {
	APIKey   *apikey.Checker
	Tokens   *token.Authorizer
	Limiter  *ratelimit.Limiter
	Resolver *identity.Resolver

	// MaxBodyBytes and PathPrefix configure RequestSize.
	MaxBodyBytes int64
	PathPrefix   string

	Logger *logging.Logger
}

// Handler wraps next with the chain.
func (c *Chain) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := c.APIKey.Check(r); err != nil {
			c.reject(w, r, GuardAPIKey, err, apperrors.NewUnauthorizedError("Invalid or missing API key"))
			return
		}

		if c.Tokens != nil {
			claims, err := c.Tokens.Check(r)
			if err != nil {
				if errors.Is(err, token.ErrInsufficientScope) {
					env := apperrors.NewForbiddenError("Token does not grant the required scope")
					env = env.WithDetails(map[string]interface{}{
						"required_scope": c.Tokens.Policy().RequiredScope(r.Method),
					})
					c.reject(w, r, GuardToken, err, env)
					return
				}
				c.reject(w, r, GuardToken, err, apperrors.NewUnauthorizedError("Invalid or missing bearer token"))
				return
			}
			r = r.WithContext(token.WithClaims(r.Context(), claims))
		}

		clientKey := c.Resolver.Resolve(r)
		r = r.WithContext(WithClientKey(r.Context(), clientKey))

		decision := c.Limiter.Decide(r.Context(), clientKey)
		if !decision.Allowed {
			retryAfter := retryAfterSeconds(decision)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			env := apperrors.NewRateLimitedError("Rate limit exceeded")
			env = env.WithDetails(map[string]interface{}{
				"retry_after_seconds": retryAfter,
			})
			c.reject(w, r, GuardRateLimit, errors.New(string(decision.Outcome)), env)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close releases the limiter backend.
func (c *Chain) Close() error {
	if c == nil {
		return nil
	}
	return c.Limiter.Close()
}

func (c *Chain) reject(w http.ResponseWriter, r *http.Request, guard string, reason error, envelope *gferrors.ErrorEnvelope) {
	metrics.RecordGuardRejection(guard, envelope.Code)
	if c.Logger != nil {
		c.Logger.Debug("Request rejected by guard",
			zap.String("guard", guard),
			zap.String("code", envelope.Code),
			zap.String("path", r.URL.Path),
			zap.String("reason", reason.Error()),
		)
	}
	apperrors.RespondWithEnvelope(w, r, envelope)
}

func retryAfterSeconds(d ratelimit.Decision) int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

type clientKeyContextKey struct{}

// WithClientKey attaches the resolved client key to ctx.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyContextKey{}, key)
}

// ClientKeyFromContext returns the client key resolved by the chain.
func ClientKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(clientKeyContextKey{}).(string)
	return key
}
