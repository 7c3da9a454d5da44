// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health checks and graceful shutdown for the billing service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("workspace_id", id).Info("checkout session created")
//
// Request-scoped loggers travel on the context:
//
//	log := observability.FromContext(ctx)
//
// The Logger also satisfies stripe.LeveledLoggerInterface so SDK logs share the
// same JSON stream.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.CheckoutSessionsTotal.WithLabelValues("ok").Inc()
//
// # Health Checks
//
// /health/live always answers 200; /health/ready checks PostgreSQL (required) and
// Redis (optional, degraded when down).
package observability
