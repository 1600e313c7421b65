package models

import "time"

// ClickEvent is one tracked ad click as written by the click redirector.
// Events are immutable once stored; ClickID is empty when the click carried
// no ad-network identifier.
type ClickEvent struct {
	TenantID     string    `json:"tenant_id"`
	AdsAccountID string    `json:"ads_account_id"`
	ClickID      string    `json:"click_id,omitempty"`
	SourceIP     string    `json:"source_ip,omitempty"`
	UserAgent    string    `json:"user_agent"`
	LandingURL   string    `json:"landing_url"`
	ObservedAt   time.Time `json:"observed_at"`
}

// HasClickID reports whether the event can be reconciled against ad-network reporting.
func (c ClickEvent) HasClickID() bool {
	return c.ClickID != ""
}
