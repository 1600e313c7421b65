package models

import "time"

// Run states for a fraud pass.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunStatus describes the latest fraud pass started for an ads account.
type RunStatus struct {
	RunID        string     `json:"run_id"`
	TenantID     string     `json:"tenant_id"`
	AdsAccountID string     `json:"ads_account_id"`
	State        string     `json:"state"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	AlertCount   int        `json:"alert_count"`
	TotalCost    string     `json:"total_cost,omitempty"`
	Error        string     `json:"error,omitempty"`
}
