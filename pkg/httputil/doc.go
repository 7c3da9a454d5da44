// Package httputil provides JSON response helpers, request parsing and the
// common middleware chain used by the billing HTTP API.
//
// Error bodies always have the shape:
//
//	{"code": "NOT_FOUND", "error": "Workspace not found"}
//
// A typical chain, outermost first:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
