// Package ledger stores inbound click events and serves windowed reads.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/patrickwarner/clickguard/internal/models"
)

// ErrUnavailable is returned when the ledger backend is not configured.
var ErrUnavailable = errors.New("click ledger unavailable")

// Ledger is an append-only click event store.
type Ledger interface {
	// Append stores click events. Events are never updated afterwards.
	Append(ctx context.Context, events ...models.ClickEvent) error
	// ClicksSince returns the events for a tenant's ads account observed at
	// or after since, ordered by observed_at.
	ClicksSince(ctx context.Context, tenantID, adsAccountID string, since time.Time) ([]models.ClickEvent, error)
}
