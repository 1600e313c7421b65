package fraud

import (
	"context"
	"net/netip"
	"time"

	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/models"
)

// WindowCount maps a source IP to its number of clicks inside the window.
type WindowCount map[string]int

// ValidIP reports whether ip is a syntactically valid IPv4 or IPv6 address.
func ValidIP(ip string) bool {
	if ip == "" {
		return false
	}
	_, err := netip.ParseAddr(ip)
	return err == nil
}

// CountByIP counts events per source IP in one pass. Events with a missing
// or malformed IP are not counted.
func CountByIP(events []models.ClickEvent) WindowCount {
	counts := make(WindowCount)
	for _, ev := range events {
		if !ValidIP(ev.SourceIP) {
			continue
		}
		counts[ev.SourceIP]++
	}
	return counts
}

// Aggregator reads the trailing window from the ledger.
type Aggregator struct {
	ledger ledger.Ledger
}

// NewAggregator creates an Aggregator over l.
func NewAggregator(l ledger.Ledger) *Aggregator {
	return &Aggregator{ledger: l}
}

// Window returns the events observed in [now-window, now] together with
// their per-IP counts.
func (a *Aggregator) Window(ctx context.Context, tenantID, accountID string, window time.Duration, now time.Time) ([]models.ClickEvent, WindowCount, error) {
	since := now.Add(-window)
	events, err := a.ledger.ClicksSince(ctx, tenantID, accountID, since)
	if err != nil {
		return nil, nil, err
	}

	inWindow := make([]models.ClickEvent, 0, len(events))
	for _, ev := range events {
		if ev.ObservedAt.Before(since) || ev.ObservedAt.After(now) {
			continue
		}
		inWindow = append(inWindow, ev)
	}
	return inWindow, CountByIP(inWindow), nil
}
