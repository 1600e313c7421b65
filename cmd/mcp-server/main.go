package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/config"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/observability"
	"github.com/patrickwarner/clickguard/internal/ratelimit"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Logs go to stderr; stdout carries the protocol.
	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, cfg); err != nil {
		logger.Fatal("MCP server error", zap.Error(err))
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	redisStore, err := db.InitRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisStore.Close()

	clicks, err := ledger.InitClickHouse(ctx, cfg.ClickHouseDSN, ledger.PoolConfig{
		MaxOpenConns:    cfg.CHMaxOpenConns,
		MaxIdleConns:    cfg.CHMaxIdleConns,
		ConnMaxLifetime: cfg.CHConnMaxLifetime,
		ConnMaxIdleTime: cfg.CHConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer clicks.Close()

	// The HTTP server owns the Prometheus registry; this process is short-lived.
	metrics := observability.NewNoOpRegistry()
	limiter := ratelimit.NewCustomerLimiter(ratelimit.Config{
		Capacity:   cfg.AdsAPIRateCapacity,
		RefillRate: cfg.AdsAPIRateRefillRate,
		Enabled:    cfg.AdsAPIRateLimited,
	}, metrics)
	ads := adsapi.NewClientFactory(adsapi.FactoryConfig{
		BaseURL:        cfg.AdsAPIBaseURL,
		Version:        cfg.AdsAPIVersion,
		DeveloperToken: cfg.AdsDeveloperToken,
		Timeout:        cfg.AdsAPITimeout,
		Limiter:        limiter,
	}, logger, metrics)

	engine := fraud.NewEngine(fraud.Deps{
		Ledger: clicks,
		Store:  pg,
		Locker: redisStore,
		Ads:    ads,
	}, fraud.ConfigFrom(cfg), logger, metrics)

	server := newMCPServer(&FraudToolServer{engine: engine, logger: logger}, version)

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio", zap.String("version", version))
	if err := server.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp run: %w (transport log: %s)", err, logBuffer.String())
	}
	return nil
}
