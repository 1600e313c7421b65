package models

import (
	"fmt"
	"time"
)

const (
	DefaultClickThreshold = 3
	MinClickThreshold     = 2
	MaxClickThreshold     = 10

	DefaultWindowHours = 24.0
	MaxWindowHours     = 168.0
)

// TenantSettings carries the per-tenant detection configuration.
type TenantSettings struct {
	TenantID       string  `json:"tenant_id"`
	ClickThreshold int     `json:"click_threshold"`
	WindowHours    float64 `json:"window_hours"`
}

// DefaultTenantSettings returns the settings used when a tenant has none stored.
func DefaultTenantSettings(tenantID string) TenantSettings {
	return TenantSettings{
		TenantID:       tenantID,
		ClickThreshold: DefaultClickThreshold,
		WindowHours:    DefaultWindowHours,
	}
}

// Window converts WindowHours into a duration.
func (s TenantSettings) Window() time.Duration {
	return time.Duration(s.WindowHours * float64(time.Hour))
}

// Validate checks the threshold and window bounds. NaN and infinite
// windows are rejected.
func (s TenantSettings) Validate() error {
	if s.ClickThreshold < MinClickThreshold || s.ClickThreshold > MaxClickThreshold {
		return fmt.Errorf("click threshold %d outside [%d, %d]", s.ClickThreshold, MinClickThreshold, MaxClickThreshold)
	}
	if !(s.WindowHours > 0 && s.WindowHours <= MaxWindowHours) {
		return fmt.Errorf("window of %.2fh outside (0, %.0f]", s.WindowHours, MaxWindowHours)
	}
	return nil
}
