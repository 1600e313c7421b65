package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/clickguard/internal/models"
)

func alert(tenant, account, click, ip string, created time.Time) models.Alert {
	return models.Alert{
		TenantID:     tenant,
		AdsAccountID: account,
		ClickID:      click,
		SourceIP:     ip,
		Reason:       models.ReasonThresholdExceeded,
		Cost:         decimal.RequireFromString("0.50"),
		CreatedAt:    created,
	}
}

func TestMemoryStore_InsertAlertsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()

	require.NoError(t, store.InsertAlerts(ctx, []models.Alert{alert("t1", "a1", "c1", "1.1.1.1", now)}))

	err := store.InsertAlerts(ctx, []models.Alert{
		alert("t1", "a1", "c2", "1.1.1.1", now),
		alert("t1", "a1", "c1", "1.1.1.1", now),
	})
	require.Error(t, err)

	existing, err := store.ExistingClickIDs(ctx, "t1", "a1", []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"c1": true}, existing)

	store.FailInsert = errors.New("disk full")
	assert.Error(t, store.InsertAlerts(ctx, []models.Alert{alert("t1", "a1", "c3", "1.1.1.1", now)}))
}

func TestMemoryStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()

	require.NoError(t, store.InsertAlerts(ctx, []models.Alert{
		alert("t1", "a1", "c1", "1.1.1.1", now.Add(-3*time.Hour)),
		alert("t1", "a1", "c2", "1.1.1.1", now.Add(-time.Hour)),
		alert("t1", "a2", "c3", "2.2.2.2", now.Add(-2*time.Hour)),
		alert("t1", "a1", "old", "3.3.3.3", now.Add(-10*24*time.Hour)),
		alert("t2", "a9", "c4", "4.4.4.4", now),
	}))

	f := AlertFilter{TenantID: "t1", Since: now.Add(-7 * 24 * time.Hour)}
	alerts, err := store.ListAlerts(ctx, f)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "c2", alerts[0].ClickID)
	assert.Equal(t, "c1", alerts[2].ClickID)

	ips, err := store.DistinctIPCount(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, ips)

	f.AdsAccountID = "a1"
	f.Limit = 1
	alerts, err = store.ListAlerts(ctx, f)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "c2", alerts[0].ClickID)
}

func TestMemoryStore_DistinctIPCountSkipsMissingIPs(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	store := NewMemoryStore()

	bot := alert("t1", "a1", "b1", "", now)
	bot.Reason = models.ReasonBotSignature
	require.NoError(t, store.InsertAlerts(ctx, []models.Alert{
		bot,
		alert("t1", "a1", "c1", "1.1.1.1", now),
	}))

	ips, err := store.DistinctIPCount(ctx, AlertFilter{TenantID: "t1", Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, ips)
}

func TestMemoryStore_Accounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	acct := &models.AdsAccount{
		TenantID:    "t1",
		CustomerID:  "1234567890",
		State:       models.StateConnected,
		Credentials: models.Credentials{AccessToken: "tok"},
	}
	require.NoError(t, store.SaveAccount(ctx, acct))
	require.NotEmpty(t, acct.ID)

	again := &models.AdsAccount{TenantID: "t1", CustomerID: "1234567890", State: models.StateConnected}
	require.NoError(t, store.SaveAccount(ctx, again))
	assert.Equal(t, acct.ID, again.ID)

	_, err := store.GetAccount(ctx, "other-tenant", acct.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	connected, err := store.ListAccountsByState(ctx, models.StateConnected)
	require.NoError(t, err)
	assert.Len(t, connected, 1)

	require.NoError(t, store.ClearCredentials(ctx, "t1", acct.ID))
	got, err := store.GetAccount(ctx, "t1", acct.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDisconnected, got.State)
	assert.True(t, got.Credentials.Empty())

	assert.ErrorIs(t, store.UpdateAccountState(ctx, "t1", "missing", models.StateAnalyzing), ErrNotFound)
}

func TestMemoryStore_TenantSettings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, found, err := store.TenantSettings(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveTenantSettings(ctx, models.TenantSettings{TenantID: "t1", ClickThreshold: 5, WindowHours: 2}))
	s, found, err := store.TenantSettings(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5, s.ClickThreshold)
}
