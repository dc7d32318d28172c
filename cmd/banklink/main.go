package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/microcosm-cc/bluemonday"

	banklink "github.com/goliatone/go-banklink"
	"github.com/goliatone/go-banklink/adapters/gocommand"
	"github.com/goliatone/go-banklink/adapters/gologger"
	"github.com/goliatone/go-banklink/adapters/otelmetrics"
	"github.com/goliatone/go-banklink/core"
	"github.com/goliatone/go-banklink/httpapi"
	"github.com/goliatone/go-banklink/providers/appwrite"
	"github.com/goliatone/go-banklink/providers/dwolla"
	"github.com/goliatone/go-banklink/providers/plaid"
	"github.com/goliatone/go-banklink/ratelimit"
	"github.com/goliatone/go-banklink/security"
	sqlstore "github.com/goliatone/go-banklink/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "banklink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := core.NewCfgxConfigProvider(core.NewEnvRawConfigLoader(core.DefaultEnvPrefix)).Load(ctx, core.DefaultConfig())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggers := gologger.NewJSONProvider(os.Stdout, cfg.Telemetry.LogLevel)
	logger := loggers.GetLogger("banklink")
	logger.Info("config loaded",
		"service", cfg.ServiceName,
		"addr", cfg.HTTP.Addr,
		"database_driver", cfg.Database.Driver,
		"plaid_environment", cfg.Plaid.Environment,
		"dwolla_environment", cfg.Dwolla.Environment,
	)

	telemetry, err := otelmetrics.Setup(otelmetrics.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Telemetry.Environment,
	}, otelmetrics.WithErrorHandler(func(err error) {
		logger.Warn("metrics instrument unavailable", "error", err)
	}))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	client, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("database close failed", "error", err)
		}
	}()
	logger.Info("database ready", "driver", cfg.Database.Driver)

	secrets, err := security.NewKeyringSecretProviderFromString(cfg.Security.StorageKey)
	if err != nil {
		return fmt.Errorf("storage key: %w", err)
	}
	codec, err := security.NewShareableIDCodecFromConfig(cfg.Security)
	if err != nil {
		return err
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = cfg.Cache.TTL
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("cache service: %w", err)
	}
	stores, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secrets, sqlstore.WithCacheService(cacheService))
	if err != nil {
		return err
	}

	aggregator, err := plaid.New(plaid.Config{
		ClientID:    cfg.Plaid.ClientID,
		Secret:      cfg.Plaid.Secret,
		Environment: cfg.Plaid.Environment,
	})
	if err != nil {
		return err
	}
	throttle := ratelimit.NewPolicy(ratelimit.NewMemoryStateStore())
	rail, err := dwolla.New(dwolla.Config{
		Key:         cfg.Dwolla.Key,
		Secret:      cfg.Dwolla.Secret,
		Environment: cfg.Dwolla.Environment,
		BaseURL:     cfg.Dwolla.BaseURL,
		RateLimit:   throttle,
	})
	if err != nil {
		return err
	}
	identity, err := appwrite.New(appwrite.Config{
		Endpoint:  cfg.Appwrite.Endpoint,
		Project:   cfg.Appwrite.Project,
		APIKey:    cfg.Appwrite.APIKey,
		RateLimit: throttle,
	})
	if err != nil {
		return err
	}

	service, err := banklink.NewService(cfg,
		banklink.WithLoggerProvider(loggers),
		banklink.WithLogger(logger),
		banklink.WithMetricsRecorder(telemetry.Recorder()),
		banklink.WithAggregatorClient(aggregator),
		banklink.WithPaymentsRailClient(rail),
		banklink.WithIdentityStore(identity),
		banklink.WithBankRecordStore(stores.BankRecordStore()),
		banklink.WithUserProfileStore(stores.UserProfileStore()),
		banklink.WithViewInvalidator(stores.ViewInvalidator()),
		banklink.WithIDObscurer(codec),
		banklink.WithNameSanitizer(bluemonday.StrictPolicy()),
	)
	if err != nil {
		return err
	}
	facade, err := banklink.NewServiceFacade(service)
	if err != nil {
		return err
	}

	registry := gocommand.NewRegistryAdapter(nil)
	subscriptions, err := gocommand.RegisterFacade(registry, facade)
	if err != nil {
		return err
	}
	defer subscriptions.Unsubscribe()
	if err := registry.Initialize(); err != nil {
		return fmt.Errorf("command registry: %w", err)
	}

	apiOpts := httpapi.Options{
		Logger:        loggers.GetLogger("httpapi"),
		CookieName:    cfg.HTTP.CookieName,
		CookieSecure:  cfg.HTTP.CookieSecure,
		MeterProvider: telemetry.MeterProvider(),
		ServiceName:   cfg.ServiceName,
	}
	if cfg.Telemetry.MetricsEnabled {
		apiOpts.MetricsHandler = telemetry.Handler()
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewServeMux(httpapi.NewHandler(facade, apiOpts), apiOpts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("banklink stopped")
	return nil
}
