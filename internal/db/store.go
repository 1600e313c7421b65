// Package db persists tenants, ads accounts and fraud alerts in Postgres and
// keeps short-lived coordination state in Redis.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/patrickwarner/clickguard/internal/models"
)

// ErrNotFound is returned when a tenant, account or run does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnavailable is returned when a store backend is not configured.
var ErrUnavailable = errors.New("store unavailable")

// AlertFilter scopes alert reads. AdsAccountID may be empty to include every
// account of the tenant; Limit of zero means no limit.
type AlertFilter struct {
	TenantID     string
	AdsAccountID string
	Since        time.Time
	Limit        int
}

// AlertStore persists fraud alerts.
type AlertStore interface {
	// InsertAlerts writes all alerts or none.
	InsertAlerts(ctx context.Context, alerts []models.Alert) error
	// ExistingClickIDs returns the subset of clickIDs that already have an
	// alert for the tenant's ads account.
	ExistingClickIDs(ctx context.Context, tenantID, adsAccountID string, clickIDs []string) (map[string]bool, error)
	// ListAlerts returns alerts created at or after f.Since, newest first.
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	// DistinctIPCount counts distinct non-empty source IPs among alerts matching f.
	DistinctIPCount(ctx context.Context, f AlertFilter) (int, error)
}

// TenantStore reads and writes per-tenant detection settings.
type TenantStore interface {
	// TenantSettings returns the stored settings and whether any were found.
	TenantSettings(ctx context.Context, tenantID string) (models.TenantSettings, bool, error)
	SaveTenantSettings(ctx context.Context, s models.TenantSettings) error
}

// AccountStore persists ads account connections.
type AccountStore interface {
	GetAccount(ctx context.Context, tenantID, accountID string) (*models.AdsAccount, error)
	FindAccountByCustomer(ctx context.Context, tenantID, customerID string) (*models.AdsAccount, error)
	// SaveAccount inserts or updates the account keyed by tenant and customer id.
	SaveAccount(ctx context.Context, acct *models.AdsAccount) error
	UpdateAccountState(ctx context.Context, tenantID, accountID string, state models.ConnectionState) error
	// ClearCredentials removes stored tokens and marks the account disconnected.
	ClearCredentials(ctx context.Context, tenantID, accountID string) error
	ListAccountsByState(ctx context.Context, state models.ConnectionState) ([]models.AdsAccount, error)
}

// Store bundles the Postgres-backed stores.
type Store interface {
	AlertStore
	TenantStore
	AccountStore
}
