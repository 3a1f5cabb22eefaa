// Package middleware provides the authenticated-principal extraction for
// Gatehouse's internal RPC boundary.
//
// Session and cookie handling live in the perimeter gateway, an external
// collaborator. By the time a request reaches Gatehouse the gateway has
// already authenticated it and forwards the resolved user id in the
// X-Auth-User-Id header. This package turns that header into an
// AuthContext; the authorization middleware in pkg/authz consumes it.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
)

// UserIDHeader carries the authenticated user id, set by the gateway
const UserIDHeader = "X-Auth-User-Id"

// contextKey prevents collisions with other packages' context values
type contextKey string

const authContextKey contextKey = "auth_context"

// AuthContext describes the authenticated caller of a request
type AuthContext struct {
	UserID int64
}

// AuthMiddleware resolves the authenticated user for each request
type AuthMiddleware struct {
	optional bool // if true, allow requests without an authenticated user
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(optional bool) *AuthMiddleware {
	return &AuthMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with principal extraction
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(UserIDHeader)
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authenticated user")
			return
		}

		userID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || userID <= 0 {
			httputil.WriteUnauthorized(w, "invalid authenticated user")
			return
		}

		ctx := WithAuthContext(r.Context(), &AuthContext{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithAuthContext attaches an auth context to the context
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// GetAuthContext extracts the auth context from a request, or nil when
// the request is unauthenticated
func GetAuthContext(r *http.Request) *AuthContext {
	val := r.Context().Value(authContextKey)
	if val == nil {
		return nil
	}
	authCtx, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
