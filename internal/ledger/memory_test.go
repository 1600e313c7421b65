package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/clickguard/internal/models"
)

func TestMemoryLedger_ClicksSinceIsInclusiveAndScoped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	l := NewMemoryLedger()
	require.NoError(t, l.Append(ctx,
		models.ClickEvent{TenantID: "t1", AdsAccountID: "a1", ClickID: "late", ObservedAt: now},
		models.ClickEvent{TenantID: "t1", AdsAccountID: "a1", ClickID: "boundary", ObservedAt: since},
		models.ClickEvent{TenantID: "t1", AdsAccountID: "a1", ClickID: "old", ObservedAt: since.Add(-time.Nanosecond)},
		models.ClickEvent{TenantID: "t2", AdsAccountID: "a1", ClickID: "other-tenant", ObservedAt: now},
		models.ClickEvent{TenantID: "t1", AdsAccountID: "a2", ClickID: "other-account", ObservedAt: now},
	))

	events, err := l.ClicksSince(ctx, "t1", "a1", since)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "boundary", events[0].ClickID)
	assert.Equal(t, "late", events[1].ClickID)
	assert.Equal(t, 5, l.Len())
}

func TestMemoryLedger_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewMemoryLedger()
	assert.Error(t, l.Append(ctx, models.ClickEvent{}))
	_, err := l.ClicksSince(ctx, "t", "a", time.Time{})
	assert.Error(t, err)
}

func TestClickHouseLedger_Unavailable(t *testing.T) {
	var l *ClickHouseLedger
	assert.ErrorIs(t, l.Append(context.Background(), models.ClickEvent{}), ErrUnavailable)
	_, err := l.ClicksSince(context.Background(), "t", "a", time.Now())
	assert.ErrorIs(t, err, ErrUnavailable)
}
