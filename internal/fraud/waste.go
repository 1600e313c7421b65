package fraud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

// DefaultWasteClickFloor is the click count a non-converting search term
// must exceed to be suggested as a negative keyword.
const DefaultWasteClickFloor int64 = 10

// ErrNoKeywords is returned when ApplyNegativeKeywords gets an empty list.
var ErrNoKeywords = errors.New("no keywords to apply")

// WasteAnalysis is the result of a waste analysis run.
type WasteAnalysis struct {
	DateRange   string                             `json:"date_range"`
	Summary     models.WasteSummary                `json:"summary"`
	Suggestions []models.NegativeKeywordSuggestion `json:"suggestions"`
}

// SearchTermQuery builds the search term performance report for dateRange.
func SearchTermQuery(dateRange string) adsapi.Query {
	return adsapi.Query{
		Entity:     "search_term_view",
		Attributes: []string{"search_term_view.search_term", "campaign.id", "ad_group.id"},
		Metrics:    []string{"metrics.cost_micros", "metrics.clicks", "metrics.conversions"},
		DateRange:  dateRange,
	}
}

// FilterWaste returns the rows that did not convert and received more than
// floor clicks, ordered by cost descending. Rows without a search term or
// with a negative cost are skipped.
func FilterWaste(rows []adsapi.Row, floor int64) []models.NegativeKeywordSuggestion {
	var out []models.NegativeKeywordSuggestion
	for _, row := range rows {
		term := strings.TrimSpace(row.SearchTerm())
		if term == "" {
			continue
		}
		clicks, _ := row.Metrics.ClickCount()
		conversions, _ := row.Metrics.ConversionCount()
		if conversions != 0 || clicks <= floor {
			continue
		}
		cost, _ := row.Metrics.Cost()
		if cost.IsNegative() {
			continue
		}
		out = append(out, models.NegativeKeywordSuggestion{
			SearchTerm:  term,
			Cost:        cost,
			Clicks:      clicks,
			Conversions: conversions,
			CampaignID:  row.CampaignID(),
			AdGroupID:   row.AdGroupID(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Cost.GreaterThan(out[j].Cost)
	})
	return out
}

// Summarize totals the suggestions and extracts their distinct lowercase
// whitespace-separated tokens in first-seen order.
func Summarize(totalTerms int, suggestions []models.NegativeKeywordSuggestion) models.WasteSummary {
	sum := models.WasteSummary{
		TotalSearchTerms:        totalTerms,
		SuggestedNegatives:      len(suggestions),
		PotentialMonthlySavings: decimal.Zero,
		Keywords:                []string{},
	}
	seen := make(map[string]bool)
	for _, s := range suggestions {
		sum.PotentialMonthlySavings = sum.PotentialMonthlySavings.Add(s.Cost)
		sum.WastedClicks += s.Clicks
		for _, tok := range strings.Fields(strings.ToLower(s.SearchTerm)) {
			if !seen[tok] {
				seen[tok] = true
				sum.Keywords = append(sum.Keywords, tok)
			}
		}
	}
	return sum
}

// WasteAnalyzer finds search terms that spend without converting and adds
// negative keywords for them.
type WasteAnalyzer struct {
	floor   int64
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewWasteAnalyzer creates a WasteAnalyzer. A floor below zero uses
// DefaultWasteClickFloor.
func NewWasteAnalyzer(floor int64, logger *zap.Logger, metrics observability.MetricsRegistry) *WasteAnalyzer {
	if floor < 0 {
		floor = DefaultWasteClickFloor
	}
	return &WasteAnalyzer{floor: floor, logger: logger, metrics: metrics}
}

// Analyze runs the search term report for dateRange and returns suggestions
// and their summary. An empty dateRange means LAST_30_DAYS.
func (w *WasteAnalyzer) Analyze(ctx context.Context, svc adsapi.Service, dateRange string) (*WasteAnalysis, error) {
	if dateRange == "" {
		dateRange = adsapi.DateRangeLast30Days
	}
	rows, err := svc.Search(ctx, SearchTermQuery(dateRange))
	if err != nil {
		return nil, fmt.Errorf("search term report: %w", err)
	}
	suggestions := FilterWaste(rows, w.floor)
	if suggestions == nil {
		suggestions = []models.NegativeKeywordSuggestion{}
	}
	return &WasteAnalysis{
		DateRange:   dateRange,
		Summary:     Summarize(len(rows), suggestions),
		Suggestions: suggestions,
	}, nil
}

// ApplyNegativeKeywords adds each keyword as a negative broad-match keyword
// on adGroupID, one mutation per keyword. Every keyword is attempted; the
// returned error joins all failures.
func (w *WasteAnalyzer) ApplyNegativeKeywords(ctx context.Context, svc adsapi.Service, customerID, adGroupID string, keywords []string) (int, error) {
	var (
		applied int
		errs    []error
	)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		res, err := svc.Mutate(ctx, []adsapi.Operation{adsapi.NegativeBroadKeyword(customerID, adGroupID, kw)})
		if err == nil && res != nil && len(res.Failures) > 0 {
			err = errors.New(strings.Join(res.Failures, "; "))
		}
		if err != nil {
			w.metrics.IncrementNegativeKeywords("failure")
			w.logger.Warn("negative keyword not applied",
				zap.String("ad_group_id", adGroupID),
				zap.String("keyword", kw),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("keyword %q: %w", kw, err))
			continue
		}
		w.metrics.IncrementNegativeKeywords("success")
		applied++
	}
	return applied, errors.Join(errs...)
}
