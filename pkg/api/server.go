package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/workspace-billing/pkg/auth"
	"github.com/platinummonkey/workspace-billing/pkg/httputil"
	"github.com/platinummonkey/workspace-billing/pkg/middleware"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// ServerConfig wires the API server
type ServerConfig struct {
	Checkout CheckoutCreator
	// Webhooks may be nil when no webhook secret is configured
	Webhooks WebhookProcessor
	Verifier auth.Verifier
	// RateLimiter is optional; nil disables checkout rate limiting
	RateLimiter *middleware.DistributedRateLimiter
	Metrics     *observability.Metrics
	Logger      *observability.Logger
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{router: mux.NewRouter()}

	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	protected := []func(http.Handler) http.Handler{
		middleware.NewAuthMiddleware(cfg.Verifier).Handler,
	}
	if cfg.RateLimiter != nil {
		protected = append(protected, middleware.NewDistributedRateLimitMiddleware(cfg.RateLimiter).Handler)
	}
	protected = append(protected, httputil.MaxBytesMiddleware(maxBodyBytes))

	NewBillingHandlers(cfg.Checkout, cfg.Webhooks).RegisterRoutes(s.router, httputil.Chain(protected...))

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s.handler = otelhttp.NewHandler(
		httputil.Chain(
			httputil.RequestIDMiddleware,
			httputil.LoggingMiddleware(logger),
			httputil.RecoveryMiddleware(logger),
		)(s.router),
		"billing-api",
	)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
