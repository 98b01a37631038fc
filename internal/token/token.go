// Package token derives the caller's identity context from a bearer access
// token.
package token

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "warden/pkg/domain-errors"
)

// Context is the access-token-derived identity a lifecycle operation runs as.
type Context struct {
	UserID   string
	ClientID string
	Scopes   []string
}

// HasScopes reports whether the caller holds every scope in the given set.
func (c Context) HasScopes(required []string) bool {
	held := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		held[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := held[s]; !ok {
			return false
		}
	}
	return true
}

// AccessTokenClaims represents the JWT claims for inbound access tokens.
type AccessTokenClaims struct {
	UserID   string   `json:"user_id"`
	ClientID string   `json:"client_id"`
	Scope    []string `json:"scope"`
	jwt.RegisteredClaims
}

// Service validates access tokens and issues them for tests and local tooling.
type Service struct {
	signingKey []byte
}

// NewService creates a token service around an HS256 signing key.
func NewService(signingKey string) *Service {
	return &Service{signingKey: []byte(signingKey)}
}

// Validate parses and verifies a signed access token.
func (s *Service) Validate(tokenString string) (*Context, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeForbidden, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "invalid token claims")
	}

	return &Context{
		UserID:   claims.UserID,
		ClientID: claims.ClientID,
		Scopes:   claims.Scope,
	}, nil
}

// Issue signs an access token for the given identity. Used by tests and lab
// tooling; production tokens come from the upstream authorization server.
func (s *Service) Issue(userID, clientID string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		UserID:   userID,
		ClientID: clientID,
		Scope:    scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

type contextKey struct{}

// WithContext attaches the identity context to a request context.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext retrieves the identity context, or nil when no valid token was
// presented.
func FromContext(ctx context.Context) *Context {
	if tc, ok := ctx.Value(contextKey{}).(*Context); ok {
		return tc
	}
	return nil
}

// Middleware parses the Authorization bearer token and, when valid, injects
// the identity context. Requests without a valid token proceed with no
// identity; the policy engine fails them closed.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
				if tc, err := svc.Validate(raw); err == nil {
					r = r.WithContext(WithContext(r.Context(), tc))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
