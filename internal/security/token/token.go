// Package token verifies HS256 bearer tokens and authorizes their scopes
// against the operation implied by the HTTP method.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is the only accepted signing algorithm.
const Algorithm = "HS256"

var (
	// ErrInvalidToken covers missing, malformed, forged and expired tokens.
	ErrInvalidToken = errors.New("invalid or missing bearer token")

	// ErrInsufficientScope reports a valid token lacking the required scope.
	ErrInsufficientScope = errors.New("insufficient token scope")
)

// Policy maps HTTP methods to required scopes. An empty scope means no
// scope is required for that class of method.
type Policy struct {
	ReadScope  string
	WriteScope string
}

// RequiredScope returns the scope required for method.
func (p Policy) RequiredScope(method string) string {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return p.ReadScope
	default:
		return p.WriteScope
	}
}

// Claims is the verified content of a bearer token.
type Claims struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authorizer verifies bearer tokens signed with a shared secret.
type Authorizer struct {
	secret []byte
	policy Policy
	clock  func() time.Time
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithClock sets the clock used for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(a *Authorizer) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewAuthorizer creates an authorizer for secret and policy.
func NewAuthorizer(secret string, policy Policy, opts ...Option) (*Authorizer, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	a := &Authorizer{
		secret: []byte(secret),
		policy: policy,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Policy returns the configured scope policy.
func (a *Authorizer) Policy() Policy {
	return a.policy
}

// Check authenticates the request's bearer token and authorizes it for the
// request method.
func (a *Authorizer) Check(r *http.Request) (*Claims, error) {
	raw, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, ErrInvalidToken
	}
	claims, err := a.Verify(raw)
	if err != nil {
		return nil, err
	}
	if err := a.Authorize(claims, r.Method); err != nil {
		return nil, err
	}
	return claims, nil
}

// Verify checks structure, signature and expiry of raw and returns its claims.
func (a *Authorizer) Verify(raw string) (*Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, fmt.Errorf("%w: expected three segments", ErrInvalidToken)
	}

	parsed, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims := &Claims{Raw: mapClaims, Scopes: scopes(mapClaims)}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// Authorize applies the method policy to verified claims.
func (a *Authorizer) Authorize(claims *Claims, method string) error {
	required := a.policy.RequiredScope(method)
	if required == "" {
		return nil
	}
	if !claims.HasScope(required) {
		return fmt.Errorf("%w: requires %s", ErrInsufficientScope, required)
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// scopes reads "scope", "scp" and "scopes" claims, accepting either a
// space-delimited string or a list of strings.
func scopes(claims jwt.MapClaims) []string {
	set := make(map[string]struct{})
	for _, name := range []string{"scope", "scp", "scopes"} {
		switch v := claims[name].(type) {
		case string:
			for _, s := range strings.Fields(v) {
				set[s] = struct{}{}
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					set[strings.TrimSpace(s)] = struct{}{}
				}
			}
		case []string:
			for _, s := range v {
				if strings.TrimSpace(s) != "" {
					set[strings.TrimSpace(s)] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type claimsKey struct{}

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns claims attached by WithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}
