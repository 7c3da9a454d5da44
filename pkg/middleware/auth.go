package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/workspace-billing/pkg/auth"
	"github.com/platinummonkey/workspace-billing/pkg/contextkeys"
	"github.com/platinummonkey/workspace-billing/pkg/httputil"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
)

// AuthMiddleware authenticates requests with an OIDC bearer ID token
type AuthMiddleware struct {
	verifier auth.Verifier
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		authCtx, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("bearer token rejected")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := auth.WithAuthContext(r.Context(), authCtx)
		ctx = contextkeys.WithUserID(ctx, authCtx.User.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	return auth.FromContext(r.Context())
}
