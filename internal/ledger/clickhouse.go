package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/models"
)

var tracer = otel.Tracer("clickguard/ledger")

const schemaSQL = `CREATE TABLE IF NOT EXISTS ad_clicks (
    tenant_id      String,
    ads_account_id String,
    click_id       Nullable(String),
    source_ip      Nullable(String),
    user_agent     String,
    landing_url    String,
    observed_at    DateTime64(3, 'UTC')
) ENGINE=MergeTree() ORDER BY (tenant_id, ads_account_id, observed_at)`

// PoolConfig sets the ClickHouse connection pool limits.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ClickHouseLedger is a Ledger backed by the ClickHouse ad_clicks table.
type ClickHouseLedger struct {
	DB *sql.DB
}

// InitClickHouse connects to ClickHouse and ensures the ad_clicks table exists.
func InitClickHouse(ctx context.Context, dsn string, pool PoolConfig) (*ClickHouseLedger, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse click ledger")
	return &ClickHouseLedger{DB: db}, nil
}

// Append inserts events as one batch.
func (l *ClickHouseLedger) Append(ctx context.Context, events ...models.ClickEvent) error {
	if l == nil || l.DB == nil {
		return ErrUnavailable
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin click batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ad_clicks (tenant_id, ads_account_id, click_id, source_ip, user_agent, landing_url, observed_at)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare click batch: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.TenantID,
			ev.AdsAccountID,
			nullString(ev.ClickID),
			nullString(ev.SourceIP),
			ev.UserAgent,
			ev.LandingURL,
			ev.ObservedAt.UTC(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append click: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit click batch: %w", err)
	}
	return nil
}

// ClicksSince implements Ledger.
func (l *ClickHouseLedger) ClicksSince(ctx context.Context, tenantID, adsAccountID string, since time.Time) ([]models.ClickEvent, error) {
	if l == nil || l.DB == nil {
		return nil, ErrUnavailable
	}

	ctx, span := tracer.Start(ctx, "ledger.ClicksSince", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ads.account_id", adsAccountID),
	))
	defer span.End()

	query := `SELECT click_id, source_ip, user_agent, landing_url, observed_at
        FROM ad_clicks
        WHERE tenant_id = ? AND ads_account_id = ? AND observed_at >= ?
        ORDER BY observed_at`
	rows, err := l.DB.QueryContext(ctx, query, tenantID, adsAccountID, since.UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("query clicks: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []models.ClickEvent
	for rows.Next() {
		var (
			clickID, sourceIP sql.NullString
			ev                = models.ClickEvent{TenantID: tenantID, AdsAccountID: adsAccountID}
		)
		if err := rows.Scan(&clickID, &sourceIP, &ev.UserAgent, &ev.LandingURL, &ev.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan click: %w", err)
		}
		ev.ClickID = clickID.String
		ev.SourceIP = sourceIP.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	span.SetAttributes(attribute.Int("clicks.count", len(events)))
	return events, nil
}

// Ping checks the ClickHouse connection.
func (l *ClickHouseLedger) Ping(ctx context.Context) error {
	return l.DB.PingContext(ctx)
}

// Close terminates the ClickHouse connection.
func (l *ClickHouseLedger) Close() {
	if l != nil && l.DB != nil {
		if err := l.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
