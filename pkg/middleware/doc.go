// Package middleware provides authentication and rate limiting for the billing API.
//
// AuthMiddleware verifies an OIDC bearer ID token and stores the caller on the
// request context:
//
//	authMW := middleware.NewAuthMiddleware(verifier)
//	router.Use(authMW.Handler)
//
// DistributedRateLimitMiddleware applies a Redis fixed-window limit per user:
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, middleware.CheckoutRateLimitConfig(), "")
//	router.Use(middleware.NewDistributedRateLimitMiddleware(limiter).Handler)
package middleware
