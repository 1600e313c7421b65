package adsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_GAQL(t *testing.T) {
	q := Query{
		Entity:      "search_term_view",
		Attributes:  []string{"search_term_view.search_term", "campaign.id"},
		Metrics:     []string{"metrics.clicks", "metrics.cost_micros"},
		Constraints: []string{"metrics.conversions = 0"},
		DateRange:   DateRangeLast30Days,
		OrderBy:     "metrics.cost_micros DESC",
		Limit:       50,
	}
	gaql, err := q.GAQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT search_term_view.search_term, campaign.id, metrics.clicks, metrics.cost_micros FROM search_term_view "+
			"WHERE metrics.conversions = 0 AND segments.date DURING LAST_30_DAYS ORDER BY metrics.cost_micros DESC LIMIT 50",
		gaql)
}

func TestQuery_Validation(t *testing.T) {
	_, err := Query{Attributes: []string{"customer.id"}}.GAQL()
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = Query{Entity: "customer"}.GAQL()
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = Query{Entity: "customer", Attributes: []string{"customer.id"}, DateRange: "FOREVER"}.GAQL()
	assert.Error(t, err)
}

func TestInAndQuote(t *testing.T) {
	assert.Equal(t, `click_view.gclid IN ('a', 'b\'c')`, In("click_view.gclid", []string{"a", "b'c"}))
	assert.Equal(t, `segments.date = '2024-01-02'`, OnDate("2024-01-02"))
}

func TestNormalizeCustomerID(t *testing.T) {
	assert.Equal(t, "1234567890", NormalizeCustomerID(" 123-456-7890 "))
}
