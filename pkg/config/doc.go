// Package config loads and validates billing service configuration from environment variables.
//
// Server settings:
//
//	BILLING_HOST="0.0.0.0"
//	BILLING_PORT="8080"
//	BILLING_HEALTH_PORT="9090"
//	BILLING_WRITE_TIMEOUT="30s"
//
// Persistence:
//
//	BILLING_DATABASE_URL="postgres://billing@localhost/billing?sslmode=disable"
//	BILLING_DATABASE_MIGRATE="true"
//	BILLING_REDIS_URL="redis://localhost:6379/0"  # optional, enables the checkout lock
//
// Stripe:
//
//	BILLING_STRIPE_SECRET_KEY="sk_test_..."        # unset leaves billing unconfigured
//	BILLING_STRIPE_WEBHOOK_SECRET="whsec_..."
//	BILLING_STRIPE_STARTER_PRICE_ID="price_..."
//	BILLING_STRIPE_PRO_PRICE_ID="price_..."
//	BILLING_PRICE_CATALOG_FILE="/etc/billing/prices.yaml"
//
// Authentication:
//
//	BILLING_OIDC_ISSUER_URL="https://accounts.example.com"
//	BILLING_OIDC_CLIENT_ID="billing"
//
// Observability:
//
//	BILLING_LOG_LEVEL="info"  # debug, info, warn, error
//	BILLING_OTEL_ENABLED="true"
//	BILLING_OTEL_ENDPOINT="otel-collector:4317"
package config
