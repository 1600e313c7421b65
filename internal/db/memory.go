package db

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patrickwarner/clickguard/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for tests and local tools.
type MemoryStore struct {
	mu       sync.RWMutex
	alerts   []models.Alert
	settings map[string]models.TenantSettings
	accounts map[string]*models.AdsAccount

	// FailInsert, when set, is returned by InsertAlerts without writing.
	FailInsert error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string]models.TenantSettings),
		accounts: make(map[string]*models.AdsAccount),
	}
}

func alertKey(tenantID, accountID, clickID string) string {
	return tenantID + "\x00" + accountID + "\x00" + clickID
}

// InsertAlerts implements AlertStore. Duplicate click ids fail the whole batch.
func (m *MemoryStore) InsertAlerts(ctx context.Context, alerts []models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailInsert != nil {
		return m.FailInsert
	}

	seen := make(map[string]bool, len(m.alerts)+len(alerts))
	for _, a := range m.alerts {
		seen[alertKey(a.TenantID, a.AdsAccountID, a.ClickID)] = true
	}
	batch := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		key := alertKey(a.TenantID, a.AdsAccountID, a.ClickID)
		if seen[key] {
			return errors.New("duplicate alert for click " + a.ClickID)
		}
		seen[key] = true
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		batch = append(batch, a)
	}
	m.alerts = append(m.alerts, batch...)
	return nil
}

// ExistingClickIDs implements AlertStore.
func (m *MemoryStore) ExistingClickIDs(ctx context.Context, tenantID, adsAccountID string, clickIDs []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(clickIDs))
	for _, id := range clickIDs {
		want[id] = true
	}
	existing := make(map[string]bool)
	for _, a := range m.alerts {
		if a.TenantID == tenantID && a.AdsAccountID == adsAccountID && want[a.ClickID] {
			existing[a.ClickID] = true
		}
	}
	return existing, nil
}

func (m *MemoryStore) filter(f AlertFilter) []models.Alert {
	var out []models.Alert
	for _, a := range m.alerts {
		if a.TenantID != f.TenantID || a.CreatedAt.Before(f.Since) {
			continue
		}
		if f.AdsAccountID != "" && a.AdsAccountID != f.AdsAccountID {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ListAlerts implements AlertStore.
func (m *MemoryStore) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.filter(f)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// DistinctIPCount implements AlertStore.
func (m *MemoryStore) DistinctIPCount(ctx context.Context, f AlertFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ips := make(map[string]struct{})
	for _, a := range m.filter(f) {
		if a.SourceIP == "" {
			continue
		}
		ips[a.SourceIP] = struct{}{}
	}
	return len(ips), nil
}

// TenantSettings implements TenantStore.
func (m *MemoryStore) TenantSettings(ctx context.Context, tenantID string) (models.TenantSettings, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.TenantSettings{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[tenantID]
	if !ok {
		return models.TenantSettings{TenantID: tenantID}, false, nil
	}
	return s, true, nil
}

// SaveTenantSettings implements TenantStore.
func (m *MemoryStore) SaveTenantSettings(ctx context.Context, s models.TenantSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.TenantID] = s
	return nil
}

// GetAccount implements AccountStore.
func (m *MemoryStore) GetAccount(ctx context.Context, tenantID, accountID string) (*models.AdsAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok || a.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// FindAccountByCustomer implements AccountStore.
func (m *MemoryStore) FindAccountByCustomer(ctx context.Context, tenantID, customerID string) (*models.AdsAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.TenantID == tenantID && a.CustomerID == customerID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SaveAccount implements AccountStore.
func (m *MemoryStore) SaveAccount(ctx context.Context, acct *models.AdsAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, a := range m.accounts {
		if a.TenantID == acct.TenantID && a.CustomerID == acct.CustomerID {
			acct.ID = id
			acct.CreatedAt = a.CreatedAt
			break
		}
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	cp := *acct
	m.accounts[acct.ID] = &cp
	return nil
}

// UpdateAccountState implements AccountStore.
func (m *MemoryStore) UpdateAccountState(ctx context.Context, tenantID, accountID string, state models.ConnectionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.TenantID != tenantID {
		return ErrNotFound
	}
	a.State = state
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearCredentials implements AccountStore.
func (m *MemoryStore) ClearCredentials(ctx context.Context, tenantID, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.TenantID != tenantID {
		return ErrNotFound
	}
	a.Credentials = models.Credentials{}
	a.State = models.StateDisconnected
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ListAccountsByState implements AccountStore.
func (m *MemoryStore) ListAccountsByState(ctx context.Context, state models.ConnectionState) ([]models.AdsAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AdsAccount
	for _, a := range m.accounts {
		if a.State == state {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out, nil
}
