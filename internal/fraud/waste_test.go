package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/observability"
)

func termRow(term, costMicros, clicks, conversions string) adsapi.Row {
	return adsapi.Row{
		SearchTermView: &adsapi.SearchTermView{SearchTerm: term},
		Campaign:       &adsapi.Resource{ID: "100"},
		AdGroup:        &adsapi.Resource{ID: "10"},
		Metrics: &adsapi.Metrics{
			CostMicros:  json.Number(costMicros),
			Clicks:      json.Number(clicks),
			Conversions: json.Number(conversions),
		},
	}
}

func TestFilterWaste(t *testing.T) {
	rows := []adsapi.Row{
		termRow("free courses", "75210000", "150", "0"),
		termRow("jobs", "62100000", "11", "0"),
		termRow("exact floor", "5000000", "10", "0"),
		termRow("converting", "90000000", "300", "1.5"),
		termRow("", "1000000", "50", "0"),
	}
	got := FilterWaste(rows, 10)

	require.Len(t, got, 2)
	assert.Equal(t, "free courses", got[0].SearchTerm)
	assert.Equal(t, "jobs", got[1].SearchTerm)
	assert.Equal(t, int64(11), got[1].Clicks)
	assert.Equal(t, "100", got[1].CampaignID)
}

func TestSummarize(t *testing.T) {
	suggestions := FilterWaste([]adsapi.Row{
		termRow("Free Courses", "75210000", "150", "0"),
		termRow("free jobs", "62100000", "120", "0"),
	}, 10)
	sum := Summarize(5432, suggestions)

	assert.Equal(t, 5432, sum.TotalSearchTerms)
	assert.Equal(t, 2, sum.SuggestedNegatives)
	assert.True(t, decimal.RequireFromString("137.31").Equal(sum.PotentialMonthlySavings))
	assert.Equal(t, int64(270), sum.WastedClicks)
	assert.Equal(t, []string{"free", "courses", "jobs"}, sum.Keywords)
}

func TestAnalyzeDefaultsDateRange(t *testing.T) {
	fake := &adsapi.Fake{
		SearchFunc: func(adsapi.Credentials, adsapi.Query) ([]adsapi.Row, error) {
			return []adsapi.Row{termRow("cheap", "1000000", "20", "0")}, nil
		},
	}
	w := NewWasteAnalyzer(DefaultWasteClickFloor, zap.NewNop(), observability.NewNoOpRegistry())
	res, err := w.Analyze(context.Background(), fake.ForCustomer(adsapi.Credentials{}), "")
	require.NoError(t, err)

	assert.Equal(t, adsapi.DateRangeLast30Days, res.DateRange)
	assert.Equal(t, 1, res.Summary.SuggestedNegatives)
	require.Len(t, fake.Searches(), 1)
	assert.Equal(t, adsapi.DateRangeLast30Days, fake.Searches()[0].Query.DateRange)
}

func TestApplyNegativeKeywordsAttemptsEveryKeyword(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	fake := &adsapi.Fake{
		MutateFunc: func(_ adsapi.Credentials, ops []adsapi.Operation) (*adsapi.MutateResult, error) {
			kw := ops[0].Resource.(adsapi.AdGroupCriterion).Keyword.Text
			switch kw {
			case "jobs":
				return nil, errors.New("policy violation")
			case "cheap":
				return &adsapi.MutateResult{Failures: []string{"duplicate criterion"}}, nil
			}
			return &adsapi.MutateResult{ResourceNames: []string{"r"}}, nil
		},
	}
	w := NewWasteAnalyzer(DefaultWasteClickFloor, zap.NewNop(), metrics)

	applied, err := w.ApplyNegativeKeywords(context.Background(), fake.ForCustomer(adsapi.Credentials{}),
		"1234567890", "10", []string{"free", "jobs", "reviews", "cheap"})

	assert.Equal(t, 2, applied)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs")
	assert.Contains(t, err.Error(), "cheap")
	assert.Len(t, fake.Mutations(), 4)
	assert.Equal(t, 2, metrics.Count("negative_keywords:success"))
	assert.Equal(t, 2, metrics.Count("negative_keywords:failure"))

	crit := fake.Mutations()[0].Operations[0].Resource.(adsapi.AdGroupCriterion)
	assert.True(t, crit.Negative)
	assert.Equal(t, "BROAD", crit.Keyword.MatchType)
	assert.Equal(t, adsapi.AdGroupResource("1234567890", "10"), crit.AdGroup)
}
