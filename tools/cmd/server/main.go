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

	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/accounts"
	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/api"
	"github.com/patrickwarner/clickguard/internal/config"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/observability"
	"github.com/patrickwarner/clickguard/internal/ratelimit"
	"github.com/patrickwarner/clickguard/internal/reporting"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.TempoEndpoint,
			SampleRate:     cfg.TracingSampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	redisStore, err := db.InitRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer redisStore.Close()

	clicks, err := ledger.InitClickHouse(ctx, cfg.ClickHouseDSN, ledger.PoolConfig{
		MaxOpenConns:    cfg.CHMaxOpenConns,
		MaxIdleConns:    cfg.CHMaxIdleConns,
		ConnMaxLifetime: cfg.CHConnMaxLifetime,
		ConnMaxIdleTime: cfg.CHConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer clicks.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	// One token bucket per ads customer id
	limiter := ratelimit.NewCustomerLimiter(ratelimit.Config{
		Capacity:   cfg.AdsAPIRateCapacity,
		RefillRate: cfg.AdsAPIRateRefillRate,
		Enabled:    cfg.AdsAPIRateLimited,
	}, metricsRegistry)

	ads := adsapi.NewClientFactory(adsapi.FactoryConfig{
		BaseURL:        cfg.AdsAPIBaseURL,
		Version:        cfg.AdsAPIVersion,
		DeveloperToken: cfg.AdsDeveloperToken,
		Timeout:        cfg.AdsAPITimeout,
		Limiter:        limiter,
	}, logger, metricsRegistry)

	engine := fraud.NewEngine(fraud.Deps{
		Ledger: clicks,
		Store:  pg,
		Locker: redisStore,
		Ads:    ads,
	}, fraud.ConfigFrom(cfg), logger, metricsRegistry)
	runner := fraud.NewRunner(engine, pg, redisStore, cfg.FraudPassConcurrency, logger)
	acctSvc := accounts.NewService(pg, ads, cfg.AdsDeveloperToken, logger)
	dashboard := reporting.NewDashboard(pg, logger)

	srvDeps := api.NewServer(logger, engine, runner, acctSvc, dashboard, pg, ads, metricsRegistry, cfg)
	srvDeps.Backends["postgres"] = pg
	srvDeps.Backends["redis"] = redisStore
	srvDeps.Backends["clickhouse"] = clicks

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Click fraud server running",
		zap.String("addr", addr),
		zap.Duration("fraud_pass_interval", cfg.FraudPassInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	runner.Start(ctx, cfg.FraudPassInterval)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Let in-flight background passes record their status.
	runner.Wait()
	return nil
}
