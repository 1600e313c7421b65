package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTenantSettingsValidate(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		hours     float64
		wantErr   bool
	}{
		{"defaults", DefaultClickThreshold, DefaultWindowHours, false},
		{"lowest threshold", MinClickThreshold, 1, false},
		{"highest threshold", MaxClickThreshold, MaxWindowHours, false},
		{"fractional window", 3, 0.5, false},
		{"threshold too low", 1, 24, true},
		{"threshold too high", 11, 24, true},
		{"zero window", 3, 0, true},
		{"negative window", 3, -1, true},
		{"window over a week", 3, MaxWindowHours + 0.1, true},
		{"NaN window", 3, math.NaN(), true},
		{"infinite window", 3, math.Inf(1), true},
		{"negative infinite window", 3, math.Inf(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TenantSettings{ClickThreshold: tt.threshold, WindowHours: tt.hours}.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTenantSettingsWindow(t *testing.T) {
	assert.Equal(t, 24*time.Hour, DefaultTenantSettings("t1").Window())
	assert.Equal(t, 90*time.Minute, TenantSettings{WindowHours: 1.5}.Window())
}
