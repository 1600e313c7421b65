package adsapi

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Row is one report result. Only the resources that were selected are
// present; every field is optional and must be checked by the caller.
type Row struct {
	Customer       *Customer       `json:"customer,omitempty"`
	Campaign       *Resource       `json:"campaign,omitempty"`
	AdGroup        *Resource       `json:"adGroup,omitempty"`
	ClickView      *ClickView      `json:"clickView,omitempty"`
	SearchTermView *SearchTermView `json:"searchTermView,omitempty"`
	Metrics        *Metrics        `json:"metrics,omitempty"`
	Segments       *Segments       `json:"segments,omitempty"`
}

// Customer carries customer-level attributes.
type Customer struct {
	ResourceName    string `json:"resourceName,omitempty"`
	ID              string `json:"id,omitempty"`
	DescriptiveName string `json:"descriptiveName,omitempty"`
	CurrencyCode    string `json:"currencyCode,omitempty"`
	TimeZone        string `json:"timeZone,omitempty"`
	Manager         bool   `json:"manager,omitempty"`
}

// Resource is a campaign or ad group reference.
type Resource struct {
	ResourceName string `json:"resourceName,omitempty"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
}

// ClickView carries per-click attributes.
type ClickView struct {
	ResourceName string `json:"resourceName,omitempty"`
	Gclid        string `json:"gclid,omitempty"`
}

// SearchTermView carries the search term that triggered an ad.
type SearchTermView struct {
	ResourceName string `json:"resourceName,omitempty"`
	SearchTerm   string `json:"searchTerm,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Segments carries segmentation fields.
type Segments struct {
	Date string `json:"date,omitempty"`
}

// Metrics holds the selected metrics. Integer metrics arrive as JSON
// strings, so they are kept as json.Number.
type Metrics struct {
	CostMicros  json.Number `json:"costMicros,omitempty"`
	Clicks      json.Number `json:"clicks,omitempty"`
	Impressions json.Number `json:"impressions,omitempty"`
	Conversions json.Number `json:"conversions,omitempty"`
}

var microsPerUnit = decimal.New(1, 6)

// Cost converts cost micros into currency units. ok is false when the
// metric is absent or malformed.
func (m *Metrics) Cost() (cost decimal.Decimal, ok bool) {
	if m == nil || m.CostMicros == "" {
		return decimal.Zero, false
	}
	micros, err := decimal.NewFromString(m.CostMicros.String())
	if err != nil {
		return decimal.Zero, false
	}
	return micros.Div(microsPerUnit), true
}

// ClickCount returns the clicks metric.
func (m *Metrics) ClickCount() (int64, bool) {
	if m == nil || m.Clicks == "" {
		return 0, false
	}
	n, err := m.Clicks.Int64()
	return n, err == nil
}

// ConversionCount returns the conversions metric, which may be fractional.
func (m *Metrics) ConversionCount() (float64, bool) {
	if m == nil || m.Conversions == "" {
		return 0, false
	}
	f, err := m.Conversions.Float64()
	return f, err == nil
}

// CampaignID returns the campaign id or "".
func (r Row) CampaignID() string {
	if r.Campaign == nil {
		return ""
	}
	return r.Campaign.ID
}

// AdGroupID returns the ad group id or "".
func (r Row) AdGroupID() string {
	if r.AdGroup == nil {
		return ""
	}
	return r.AdGroup.ID
}

// Gclid returns the click id or "".
func (r Row) Gclid() string {
	if r.ClickView == nil {
		return ""
	}
	return r.ClickView.Gclid
}

// SearchTerm returns the search term or "".
func (r Row) SearchTerm() string {
	if r.SearchTermView == nil {
		return ""
	}
	return r.SearchTermView.SearchTerm
}

// Date returns the date segment or "".
func (r Row) Date() string {
	if r.Segments == nil {
		return ""
	}
	return r.Segments.Date
}

// customerIDFromResource extracts "123" from "customers/123".
func customerIDFromResource(name string) string {
	return strings.TrimPrefix(name, "customers/")
}
