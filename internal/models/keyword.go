package models

import "github.com/shopspring/decimal"

// NegativeKeywordSuggestion is a search term that spent money without converting.
type NegativeKeywordSuggestion struct {
	SearchTerm  string          `json:"search_term"`
	Cost        decimal.Decimal `json:"cost"`
	Clicks      int64           `json:"clicks"`
	Conversions float64         `json:"conversions"`
	CampaignID  string          `json:"campaign_id,omitempty"`
	AdGroupID   string          `json:"ad_group_id,omitempty"`
}

// WasteSummary aggregates a waste analysis run.
type WasteSummary struct {
	TotalSearchTerms        int             `json:"total_search_terms"`
	SuggestedNegatives      int             `json:"suggested_negatives"`
	PotentialMonthlySavings decimal.Decimal `json:"potential_monthly_savings"`
	WastedClicks            int64           `json:"wasted_clicks"`
	Keywords                []string        `json:"keywords"`
}
