package config

import (
	"testing"
	"time"

	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BILLING_DATABASE_URL", "postgres://localhost/billing")
	t.Setenv("BILLING_OIDC_ISSUER_URL", "https://issuer.example.com")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Empty(t, cfg.Redis.URL)
	assert.False(t, cfg.Stripe.Configured())
	assert.Equal(t, 30*time.Second, cfg.Checkout.LockTTL)
	assert.Equal(t, uint32(5), cfg.Checkout.BreakerMaxFailures)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "workspace-billing", cfg.Observability.OTelServiceName)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_PORT", "8443")
	t.Setenv("BILLING_STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("BILLING_STRIPE_PRO_PRICE_ID", "price_pro")
	t.Setenv("BILLING_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("BILLING_CHECKOUT_LOCK_TTL", "45s")
	t.Setenv("BILLING_LOG_LEVEL", "debug")
	t.Setenv("BILLING_DATABASE_MIGRATE", "1")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8443", cfg.Server.Port)
	assert.True(t, cfg.Stripe.Configured())
	assert.Equal(t, "price_pro", cfg.Stripe.ProPriceID)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.Equal(t, 45*time.Second, cfg.Checkout.LockTTL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Database.RunMigrations)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_DATABASE_MAX_OPEN_CONNS", "lots")
	t.Setenv("BILLING_READ_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{URL: "postgres://localhost/billing", MaxOpenConns: 10},
			Auth:     AuthConfig{IssuerURL: "https://issuer.example.com"},
			Checkout: CheckoutConfig{LockTTL: time.Second, WebhookDedupeSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid without stripe",
			mutate: func(c *Config) {},
		},
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: "must be different",
		},
		{
			name:    "missing database",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "database URL is required",
		},
		{
			name:    "missing issuer",
			mutate:  func(c *Config) { c.Auth.IssuerURL = "" },
			wantErr: "OIDC issuer URL is required",
		},
		{
			name:    "stripe without prices",
			mutate:  func(c *Config) { c.Stripe.SecretKey = "sk_test" },
			wantErr: "price catalog file or at least one plan price ID",
		},
		{
			name: "stripe with catalog file",
			mutate: func(c *Config) {
				c.Stripe.SecretKey = "sk_test"
				c.Stripe.PriceCatalogFile = "/etc/prices.yaml"
			},
		},
		{
			name:    "zero lock ttl",
			mutate:  func(c *Config) { c.Checkout.LockTTL = 0 },
			wantErr: "lock TTL",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelServiceName = "billing"
			},
			wantErr: "OpenTelemetry endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL_TRUE", "TRUE")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_NO", "no")

	assert.True(t, getEnvBool("TEST_BOOL_TRUE", false))
	assert.True(t, getEnvBool("TEST_BOOL_ONE", false))
	assert.False(t, getEnvBool("TEST_BOOL_NO", true))
	assert.True(t, getEnvBool("TEST_BOOL_UNSET", true))
}
