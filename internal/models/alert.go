package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FraudReason tags why a click was classified as fraudulent.
type FraudReason string

const (
	// ReasonThresholdExceeded marks clicks from an IP whose in-window click
	// count is above the tenant's threshold.
	ReasonThresholdExceeded FraudReason = "threshold_exceeded"
	// ReasonBotSignature marks clicks whose user agent matches a known bot signature.
	ReasonBotSignature FraudReason = "bot_signature"
)

// FraudVerdict is the classifier output for a single click id. ClickedAt
// is when the click was observed; DetectedAt is when the pass ran.
type FraudVerdict struct {
	ClickID    string      `json:"click_id"`
	SourceIP   string      `json:"source_ip"`
	Reason     FraudReason `json:"reason"`
	ClickedAt  time.Time   `json:"clicked_at"`
	DetectedAt time.Time   `json:"detected_at"`
}

// ReconciledAlert is a verdict enriched with cost and attribution from the
// ads reporting service. CampaignID and AdGroupID are empty when reporting
// returned no attribution for the click.
type ReconciledAlert struct {
	FraudVerdict
	Cost       decimal.Decimal `json:"cost"`
	CampaignID string          `json:"campaign_id,omitempty"`
	AdGroupID  string          `json:"ad_group_id,omitempty"`
}

// HasCampaign reports whether the alert can be suppressed at campaign level.
func (a ReconciledAlert) HasCampaign() bool {
	return a.CampaignID != ""
}

// Alert is a persisted fraud alert row.
type Alert struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	AdsAccountID string          `json:"ads_account_id"`
	ClickID      string          `json:"click_id"`
	SourceIP     string          `json:"source_ip"`
	DetectedAt   time.Time       `json:"detected_at"`
	Reason       FraudReason     `json:"reason"`
	Cost         decimal.Decimal `json:"cost"`
	CampaignID   string          `json:"campaign_id,omitempty"`
	AdGroupID    string          `json:"ad_group_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
