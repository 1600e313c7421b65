package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/models"
)

var _ Store = (*Postgres)(nil)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS tenant_settings (
    tenant_id TEXT PRIMARY KEY,
    click_threshold INT NOT NULL DEFAULT 3,
    window_hours DOUBLE PRECISION NOT NULL DEFAULT 24,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ads_accounts (
    id UUID PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    login_customer_id TEXT,
    account_name TEXT,
    currency_code TEXT,
    time_zone TEXT,
    state TEXT NOT NULL,
    access_token TEXT,
    refresh_token TEXT,
    token_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, customer_id)
);

CREATE TABLE IF NOT EXISTS fraud_alerts (
    id UUID PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    ads_account_id UUID NOT NULL REFERENCES ads_accounts(id) ON DELETE CASCADE,
    click_id TEXT NOT NULL,
    source_ip TEXT NOT NULL,
    detected_at TIMESTAMPTZ NOT NULL,
    reason TEXT NOT NULL,
    cost NUMERIC(18,6) NOT NULL CHECK (cost >= 0),
    campaign_id TEXT,
    ad_group_id TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (tenant_id, ads_account_id, click_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_tenant_created ON fraud_alerts (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_account_created ON fraud_alerts (ads_account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ads_accounts_state ON ads_accounts (state);
ALTER TABLE ads_accounts ADD COLUMN IF NOT EXISTS time_zone TEXT;
`

// PoolConfig sets the Postgres connection pool limits.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// InitPostgres connects to Postgres with connection pooling configuration
// and ensures the schema exists.
func InitPostgres(ctx context.Context, dsn string, pool PoolConfig) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
		zap.Duration("conn_max_lifetime", pool.ConnMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.DB == nil {
		return ErrUnavailable
	}
	return p.DB.PingContext(ctx)
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertAlerts copies the batch inside one transaction so a failure leaves
// nothing behind.
func (p *Postgres) InsertAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alert batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("fraud_alerts",
		"id", "tenant_id", "ads_account_id", "click_id", "source_ip", "detected_at",
		"reason", "cost", "campaign_id", "ad_group_id", "created_at"))
	if err != nil {
		return fmt.Errorf("prepare alert copy: %w", err)
	}

	for _, a := range alerts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.TenantID, a.AdsAccountID, a.ClickID, a.SourceIP, a.DetectedAt,
			string(a.Reason), a.Cost.String(), nullable(a.CampaignID), nullable(a.AdGroupID), a.CreatedAt,
		); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy alert %s: %w", a.ClickID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush alert copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close alert copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alert batch: %w", err)
	}
	return nil
}

// ExistingClickIDs implements AlertStore.
func (p *Postgres) ExistingClickIDs(ctx context.Context, tenantID, adsAccountID string, clickIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(clickIDs) == 0 {
		return existing, nil
	}
	rows, err := p.DB.QueryContext(ctx,
		`SELECT click_id FROM fraud_alerts WHERE tenant_id=$1 AND ads_account_id=$2 AND click_id = ANY($3)`,
		tenantID, adsAccountID, pq.Array(clickIDs))
	if err != nil {
		return nil, fmt.Errorf("query existing click ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan click id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return existing, nil
}

// ListAlerts implements AlertStore.
func (p *Postgres) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	query := `SELECT id, tenant_id, ads_account_id, click_id, source_ip, detected_at, reason, cost, campaign_id, ad_group_id, created_at
        FROM fraud_alerts
        WHERE tenant_id=$1 AND created_at >= $2 AND ($3 = '' OR ads_account_id::text = $3)
        ORDER BY created_at DESC`
	args := []any{f.TenantID, f.Since, f.AdsAccountID}
	if f.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, f.Limit)
	}

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var reason string
		var campaignID, adGroupID sql.NullString
		if err := rows.Scan(&a.ID, &a.TenantID, &a.AdsAccountID, &a.ClickID, &a.SourceIP, &a.DetectedAt,
			&reason, &a.Cost, &campaignID, &adGroupID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Reason = models.FraudReason(reason)
		a.CampaignID = campaignID.String
		a.AdGroupID = adGroupID.String
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return alerts, nil
}

// DistinctIPCount implements AlertStore. Alerts without an IP are not counted.
func (p *Postgres) DistinctIPCount(ctx context.Context, f AlertFilter) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT source_ip) FROM fraud_alerts
        WHERE tenant_id=$1 AND created_at >= $2 AND ($3 = '' OR ads_account_id::text = $3)
          AND source_ip <> ''`,
		f.TenantID, f.Since, f.AdsAccountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct ips: %w", err)
	}
	return n, nil
}

// TenantSettings implements TenantStore.
func (p *Postgres) TenantSettings(ctx context.Context, tenantID string) (models.TenantSettings, bool, error) {
	s := models.TenantSettings{TenantID: tenantID}
	err := p.DB.QueryRowContext(ctx,
		`SELECT click_threshold, window_hours FROM tenant_settings WHERE tenant_id=$1`, tenantID,
	).Scan(&s.ClickThreshold, &s.WindowHours)
	if errors.Is(err, sql.ErrNoRows) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("query tenant settings: %w", err)
	}
	return s, true, nil
}

// SaveTenantSettings implements TenantStore.
func (p *Postgres) SaveTenantSettings(ctx context.Context, s models.TenantSettings) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO tenant_settings (tenant_id, click_threshold, window_hours, updated_at)
        VALUES ($1,$2,$3,NOW())
        ON CONFLICT (tenant_id) DO UPDATE SET click_threshold=EXCLUDED.click_threshold, window_hours=EXCLUDED.window_hours, updated_at=NOW()`,
		s.TenantID, s.ClickThreshold, s.WindowHours)
	if err != nil {
		return fmt.Errorf("save tenant settings: %w", err)
	}
	return nil
}

const accountColumns = `id, tenant_id, customer_id, login_customer_id, account_name, currency_code, time_zone, state,
    access_token, refresh_token, token_expires_at, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.AdsAccount, error) {
	var a models.AdsAccount
	var login, name, currency, tz, access, refresh sql.NullString
	var expires sql.NullTime
	var state string
	if err := row.Scan(&a.ID, &a.TenantID, &a.CustomerID, &login, &name, &currency, &tz, &state,
		&access, &refresh, &expires, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.LoginCustomerID = login.String
	a.AccountName = name.String
	a.CurrencyCode = currency.String
	a.TimeZone = tz.String
	a.State = models.ConnectionState(state)
	a.Credentials = models.Credentials{
		AccessToken:    access.String,
		RefreshToken:   refresh.String,
		TokenExpiresAt: expires.Time,
	}
	return &a, nil
}

// GetAccount implements AccountStore.
func (p *Postgres) GetAccount(ctx context.Context, tenantID, accountID string) (*models.AdsAccount, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ads_accounts WHERE tenant_id=$1 AND id::text=$2`, tenantID, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

// FindAccountByCustomer implements AccountStore.
func (p *Postgres) FindAccountByCustomer(ctx context.Context, tenantID, customerID string) (*models.AdsAccount, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ads_accounts WHERE tenant_id=$1 AND customer_id=$2`, tenantID, customerID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account by customer: %w", err)
	}
	return a, nil
}

// SaveAccount implements AccountStore. The stored id wins on conflict and is
// written back into acct.
func (p *Postgres) SaveAccount(ctx context.Context, acct *models.AdsAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	var expires sql.NullTime
	if !acct.Credentials.TokenExpiresAt.IsZero() {
		expires = sql.NullTime{Time: acct.Credentials.TokenExpiresAt, Valid: true}
	}
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO ads_accounts (id, tenant_id, customer_id, login_customer_id, account_name, currency_code, time_zone, state,
            access_token, refresh_token, token_expires_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
        ON CONFLICT (tenant_id, customer_id) DO UPDATE SET
            login_customer_id=EXCLUDED.login_customer_id,
            account_name=EXCLUDED.account_name,
            currency_code=EXCLUDED.currency_code,
            time_zone=EXCLUDED.time_zone,
            state=EXCLUDED.state,
            access_token=EXCLUDED.access_token,
            refresh_token=EXCLUDED.refresh_token,
            token_expires_at=EXCLUDED.token_expires_at,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`,
		acct.ID, acct.TenantID, acct.CustomerID, nullable(acct.LoginCustomerID), nullable(acct.AccountName),
		nullable(acct.CurrencyCode), nullable(acct.TimeZone), string(acct.State), nullable(acct.Credentials.AccessToken),
		nullable(acct.Credentials.RefreshToken), expires,
	).Scan(&acct.ID, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// UpdateAccountState implements AccountStore.
func (p *Postgres) UpdateAccountState(ctx context.Context, tenantID, accountID string, state models.ConnectionState) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE ads_accounts SET state=$1, updated_at=NOW() WHERE tenant_id=$2 AND id::text=$3`,
		string(state), tenantID, accountID)
	if err != nil {
		return fmt.Errorf("update account state: %w", err)
	}
	return expectOne(res)
}

// ClearCredentials implements AccountStore.
func (p *Postgres) ClearCredentials(ctx context.Context, tenantID, accountID string) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE ads_accounts SET access_token=NULL, refresh_token=NULL, token_expires_at=NULL, state=$1, updated_at=NOW()
        WHERE tenant_id=$2 AND id::text=$3`,
		string(models.StateDisconnected), tenantID, accountID)
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return expectOne(res)
}

// ListAccountsByState implements AccountStore.
func (p *Postgres) ListAccountsByState(ctx context.Context, state models.ConnectionState) ([]models.AdsAccount, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM ads_accounts WHERE state=$1 ORDER BY tenant_id, customer_id`, string(state))
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var accounts []models.AdsAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return accounts, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
