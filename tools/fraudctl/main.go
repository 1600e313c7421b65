// Command fraudctl runs fraud passes, waste analysis and negative keyword
// updates against the configured stores from a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/config"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/observability"
	"github.com/patrickwarner/clickguard/internal/ratelimit"
)

// app is what the commands operate on.
type app struct {
	engine *fraud.Engine
	alerts db.AlertStore
}

// appFactory opens an app. The returned func releases its connections.
type appFactory func(ctx context.Context, logger *zap.Logger) (*app, func(), error)

// options are the global flags.
type options struct {
	tenantID  string
	accountID string
	asJSON    bool
	verbose   bool
}

func newRootCmd(open appFactory, out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "fraudctl",
		Short: "Operate the click fraud engine",
		Long: `fraudctl runs the click fraud engine against one tenant's ads account.

Examples:
  fraudctl pass --tenant t1 --account <id> --threshold 4
  fraudctl waste --tenant t1 --account <id> --range LAST_7_DAYS
  fraudctl apply-negatives --tenant t1 --account <id> --ad-group 222 free jobs
  fraudctl alerts --tenant t1 --days 7`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&opts.tenantID, "tenant", "t", "", "Tenant id")
	root.PersistentFlags().StringVarP(&opts.accountID, "account", "a", "", "Ads account id")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")
	_ = root.MarkPersistentFlagRequired("tenant")

	withApp := func(run runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			logger := zap.NewNop()
			if opts.verbose {
				l, err := observability.InitLoggerWithService("fraudctl")
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				logger = l
			}
			a, closeFn, err := open(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer closeFn()
			return run(cmd.Context(), a, cmd, args)
		}
	}

	root.AddCommand(newPassCmd(opts, withApp))
	root.AddCommand(newWasteCmd(opts, withApp))
	root.AddCommand(newApplyNegativesCmd(opts, withApp))
	root.AddCommand(newAlertsCmd(opts, withApp))
	return root
}

// openStores connects to Postgres, Redis and ClickHouse using the service
// configuration.
func openStores(ctx context.Context, logger *zap.Logger) (*app, func(), error) {
	cfg := config.Load()

	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 1})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisStore, err := db.InitRedis(ctx, cfg.RedisAddr)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	clicks, err := ledger.InitClickHouse(ctx, cfg.ClickHouseDSN, ledger.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 1})
	if err != nil {
		redisStore.Close()
		pg.Close()
		return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
	}

	metrics := observability.NewNoOpRegistry()
	ads := adsapi.NewClientFactory(adsapi.FactoryConfig{
		BaseURL:        cfg.AdsAPIBaseURL,
		Version:        cfg.AdsAPIVersion,
		DeveloperToken: cfg.AdsDeveloperToken,
		Timeout:        cfg.AdsAPITimeout,
		Limiter: ratelimit.NewCustomerLimiter(ratelimit.Config{
			Capacity:   cfg.AdsAPIRateCapacity,
			RefillRate: cfg.AdsAPIRateRefillRate,
			Enabled:    cfg.AdsAPIRateLimited,
		}, metrics),
	}, logger, metrics)

	engine := fraud.NewEngine(fraud.Deps{
		Ledger: clicks,
		Store:  pg,
		Locker: redisStore,
		Ads:    ads,
	}, fraud.ConfigFrom(cfg), logger, metrics)

	closeFn := func() {
		clicks.Close()
		redisStore.Close()
		pg.Close()
		_ = logger.Sync()
	}
	return &app{engine: engine, alerts: pg}, closeFn, nil
}

func main() {
	if err := newRootCmd(openStores, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
