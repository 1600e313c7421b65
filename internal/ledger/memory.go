package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/clickguard/internal/models"
)

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*ClickHouseLedger)(nil)
)

// MemoryLedger is an in-process Ledger used by tests and local tools.
type MemoryLedger struct {
	mu     sync.RWMutex
	events []models.ClickEvent
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(ctx context.Context, events ...models.ClickEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
	return nil
}

// ClicksSince implements Ledger.
func (l *MemoryLedger) ClicksSince(ctx context.Context, tenantID, adsAccountID string, since time.Time) ([]models.ClickEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.ClickEvent
	for _, ev := range l.events {
		if ev.TenantID != tenantID || ev.AdsAccountID != adsAccountID {
			continue
		}
		if ev.ObservedAt.Before(since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

// Len returns the number of stored events.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
