package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/workspace-billing/pkg/api"
	"github.com/platinummonkey/workspace-billing/pkg/audit"
	"github.com/platinummonkey/workspace-billing/pkg/auth"
	"github.com/platinummonkey/workspace-billing/pkg/billing"
	"github.com/platinummonkey/workspace-billing/pkg/config"
	"github.com/platinummonkey/workspace-billing/pkg/middleware"
	"github.com/platinummonkey/workspace-billing/pkg/observability"
	"github.com/platinummonkey/workspace-billing/pkg/workspaces"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "billing-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Database.RunMigrations {
		if err := workspaces.RunMigrations(ctx, db, logger.Infof); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redisClient, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	verifier, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
		IssuerURL:       cfg.Auth.IssuerURL,
		ClientID:        cfg.Auth.ClientID,
		SkipIssuerCheck: cfg.Auth.SkipIssuerCheck,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OIDC verifier: %w", err)
	}

	store := workspaces.NewPostgresStore(db)

	serviceCfg := billing.CheckoutServiceConfig{
		Workspaces: store,
		Users:      store,
		Authorizer: workspaces.AdminWriteGuard{},
		LockTTL:    cfg.Checkout.LockTTL,
		Metrics:    metrics,
		Audit:      audit.NewDBLogger(db),
	}
	if redisClient != nil {
		serviceCfg.Locker = billing.NewRedisLocker(redisClient, "")
	}

	// Provider must stay a nil interface when Stripe is not configured
	if cfg.Stripe.Configured() {
		catalog, err := loadCatalog(ctx, cfg.Stripe, logger)
		if err != nil {
			return err
		}
		stripeAPI := billing.NewStripeClient(billing.StripeClientConfig{
			SecretKey: cfg.Stripe.SecretKey,
			APIURL:    cfg.Stripe.APIURL,
			Timeout:   cfg.Stripe.Timeout,
		}, logger.WithField("component", "stripe"))
		serviceCfg.Provider = billing.NewBreakerGateway(
			billing.NewStripeGateway(stripeAPI, catalog, metrics),
			billing.BreakerSettings{
				MaxFailures: cfg.Checkout.BreakerMaxFailures,
				OpenTimeout: cfg.Checkout.BreakerOpenTimeout,
			},
			metrics,
		)
	} else {
		logger.Error("Stripe is not configured; checkout requests will fail with CONFIGURATION_MISSING")
	}
	checkoutService := billing.NewCheckoutService(serviceCfg)

	serverCfg := api.ServerConfig{
		Checkout: checkoutService,
		Verifier: verifier,
		Metrics:  metrics,
		Logger:   logger,
	}
	if cfg.Stripe.WebhookSecret != "" {
		processor, err := billing.NewWebhookProcessor(cfg.Stripe.WebhookSecret, store,
			cfg.Checkout.WebhookDedupeSize, metrics, logger.WithField("component", "webhooks"))
		if err != nil {
			return err
		}
		serverCfg.Webhooks = processor
	}
	if redisClient != nil {
		serverCfg.RateLimiter = middleware.NewDistributedRateLimiter(redisClient, middleware.CheckoutRateLimitConfig(), "")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(serverCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	scheduler := cron.New()
	if metrics != nil {
		if _, err := observability.ScheduleDBStats(scheduler, cfg.Checkout.DBStatsSchedule, db, metrics); err != nil {
			return fmt.Errorf("failed to schedule database stats: %w", err)
		}
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return db.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	group, groupCtx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		srv := srv
		group.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return shutdown.WaitForShutdown(groupCtx)
	})

	return group.Wait()
}

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// connectRedis returns a nil client when no Redis URL is configured
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *observability.Logger) (redis.UniversalClient, error) {
	if cfg.URL == "" {
		logger.Warn("Redis is not configured; checkout locking and rate limiting are disabled")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = cfg.PoolSize

	client := redis.NewClient(opts)
	// lock and limiter fail open, so an unreachable Redis is not fatal
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis ping failed at startup")
	}
	return client, nil
}

func loadCatalog(ctx context.Context, cfg config.StripeConfig, logger *observability.Logger) (billing.PriceLookup, error) {
	if cfg.PriceCatalogFile == "" {
		return billing.NewStaticCatalog(map[billing.Plan]string{
			billing.PlanStarter: cfg.StarterPriceID,
			billing.PlanPro:     cfg.ProPriceID,
		}), nil
	}

	catalog, err := billing.LoadCatalogFile(cfg.PriceCatalogFile)
	if err != nil {
		return nil, err
	}
	if err := catalog.Watch(ctx, logger.WithField("component", "catalog")); err != nil {
		return nil, err
	}
	return catalog, nil
}
