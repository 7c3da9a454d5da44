// Package auth identifies the caller of a billing request.
//
// # Overview
//
// Callers authenticate with an OpenID Connect ID token sent as a bearer token.
// The token is verified against the configured issuer and mapped to a User
// carrying the subject (user ID) and the verified email address.
//
//	verifier, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
//		IssuerURL: "https://accounts.example.com",
//		ClientID:  "billing",
//	})
//	user, err := verifier.Verify(ctx, rawToken)
//
// The HTTP middleware (pkg/middleware) stores the resulting AuthContext in the
// request context, where handlers read it back with FromContext.
//
// # Related Packages
//
//   - pkg/middleware: bearer token extraction
//   - pkg/workspaces: workspace roles used for authorization
package auth
