package auth

import (
	"context"
	"errors"

	"github.com/platinummonkey/workspace-billing/pkg/contextkeys"
)

// ErrInvalidToken is returned when a bearer token cannot be verified
var ErrInvalidToken = errors.New("invalid or expired token")

// User is the authenticated caller
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthContext holds authenticated user information for a request
type AuthContext struct {
	User    User
	Subject string
	Issuer  string
}

// Verifier turns a raw bearer token into an authenticated user
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*AuthContext, error)
}

// WithAuthContext stores the auth context on ctx
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return contextkeys.WithAuth(ctx, authCtx)
}

// FromContext returns the auth context stored on ctx, or nil
func FromContext(ctx context.Context) *AuthContext {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
