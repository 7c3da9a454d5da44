package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/workspace-billing/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Stripe        StripeConfig
	Auth          AuthConfig
	Checkout      CheckoutConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RunMigrations   bool
}

// RedisConfig holds settings for the checkout lock backend. An empty URL disables locking.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// StripeConfig holds payment provider settings. An empty SecretKey leaves
// billing unconfigured; the service still starts and rejects checkouts.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string
	Timeout       time.Duration

	StarterPriceID   string
	ProPriceID       string
	PriceCatalogFile string
}

// Configured reports whether Stripe credentials are present
func (s StripeConfig) Configured() bool {
	return s.SecretKey != ""
}

// AuthConfig holds OIDC bearer token settings
type AuthConfig struct {
	IssuerURL       string
	ClientID        string
	SkipIssuerCheck bool
}

// CheckoutConfig tunes the checkout workflow guards
type CheckoutConfig struct {
	LockTTL            time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	WebhookDedupeSize  int
	DBStatsSchedule    string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Stripe:        loadStripeConfig(),
		Auth:          loadAuthConfig(),
		Checkout:      loadCheckoutConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BILLING_HOST", "0.0.0.0"),
		Port:            getEnv("BILLING_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BILLING_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BILLING_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("BILLING_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BILLING_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BILLING_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("BILLING_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("BILLING_DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("BILLING_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("BILLING_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		RunMigrations:   getEnvBool("BILLING_DATABASE_MIGRATE", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("BILLING_REDIS_URL", ""),
		Password: getEnv("BILLING_REDIS_PASSWORD", ""),
		DB:       getEnvInt("BILLING_REDIS_DB", 0),
		PoolSize: getEnvInt("BILLING_REDIS_POOL_SIZE", 10),
	}
}

func loadStripeConfig() StripeConfig {
	return StripeConfig{
		SecretKey:        getEnv("BILLING_STRIPE_SECRET_KEY", ""),
		WebhookSecret:    getEnv("BILLING_STRIPE_WEBHOOK_SECRET", ""),
		APIURL:           getEnv("BILLING_STRIPE_API_URL", ""),
		Timeout:          getEnvDuration("BILLING_STRIPE_TIMEOUT", 20*time.Second),
		StarterPriceID:   getEnv("BILLING_STRIPE_STARTER_PRICE_ID", ""),
		ProPriceID:       getEnv("BILLING_STRIPE_PRO_PRICE_ID", ""),
		PriceCatalogFile: getEnv("BILLING_PRICE_CATALOG_FILE", ""),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		IssuerURL:       getEnv("BILLING_OIDC_ISSUER_URL", ""),
		ClientID:        getEnv("BILLING_OIDC_CLIENT_ID", ""),
		SkipIssuerCheck: getEnvBool("BILLING_OIDC_SKIP_ISSUER_CHECK", false),
	}
}

func loadCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		LockTTL:            getEnvDuration("BILLING_CHECKOUT_LOCK_TTL", 30*time.Second),
		BreakerMaxFailures: uint32(getEnvInt("BILLING_STRIPE_BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getEnvDuration("BILLING_STRIPE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		WebhookDedupeSize:  getEnvInt("BILLING_WEBHOOK_DEDUPE_SIZE", 4096),
		DBStatsSchedule:    getEnv("BILLING_DB_STATS_SCHEDULE", "@every 15s"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("BILLING_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("BILLING_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BILLING_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BILLING_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BILLING_OTEL_SERVICE_NAME", "workspace-billing"),
		OTelServiceVersion: getEnv("BILLING_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BILLING_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid. Missing Stripe credentials
// are deliberately not an error here.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database max open connections must be positive")
	}

	if c.Auth.IssuerURL == "" {
		return fmt.Errorf("OIDC issuer URL is required")
	}

	if c.Stripe.Configured() && c.Stripe.PriceCatalogFile == "" &&
		c.Stripe.StarterPriceID == "" && c.Stripe.ProPriceID == "" {
		return fmt.Errorf("a price catalog file or at least one plan price ID is required when Stripe is configured")
	}

	if c.Checkout.LockTTL <= 0 {
		return fmt.Errorf("checkout lock TTL must be positive")
	}
	if c.Checkout.WebhookDedupeSize < 1 {
		return fmt.Errorf("webhook dedupe size must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
