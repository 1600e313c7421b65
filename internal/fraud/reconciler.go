package fraud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

const reportDateLayout = "2006-01-02"

// Reconciler joins verdicts to reported cost and attribution by click id.
type Reconciler struct {
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewReconciler creates a Reconciler.
func NewReconciler(logger *zap.Logger, metrics observability.MetricsRegistry) *Reconciler {
	return &Reconciler{logger: logger, metrics: metrics}
}

// ClickCostQuery builds the report query for click ids observed on day
// (YYYY-MM-DD in the account's time zone). Click reports accept a single
// date per query.
func ClickCostQuery(clickIDs []string, day string) adsapi.Query {
	return adsapi.Query{
		Entity:     "click_view",
		Attributes: []string{"click_view.gclid", "campaign.id", "ad_group.id"},
		Metrics:    []string{"metrics.cost_micros"},
		Constraints: []string{
			adsapi.In("click_view.gclid", clickIDs),
			adsapi.OnDate(day),
		},
	}
}

// ClickDays groups click ids by the date their click was observed in loc,
// each list sorted. A nil loc means UTC.
func ClickDays(verdicts []models.FraudVerdict, loc *time.Location) map[string][]string {
	if loc == nil {
		loc = time.UTC
	}
	days := make(map[string][]string)
	seen := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		if seen[v.ClickID] {
			continue
		}
		seen[v.ClickID] = true
		at := v.ClickedAt
		if at.IsZero() {
			at = v.DetectedAt
		}
		day := at.In(loc).Format(reportDateLayout)
		days[day] = append(days[day], v.ClickID)
	}
	for _, ids := range days {
		sort.Strings(ids)
	}
	return days
}

// Reconcile queries the click report once per account-local day covered by
// the verdicts and returns an alert per matching row. Verdicts without a
// row are dropped. Any query failure fails the whole reconciliation.
func (r *Reconciler) Reconcile(ctx context.Context, svc adsapi.Service, verdicts []models.FraudVerdict, loc *time.Location) ([]models.ReconciledAlert, error) {
	if len(verdicts) == 0 {
		return nil, nil
	}

	byClick := make(map[string]models.FraudVerdict, len(verdicts))
	for _, v := range verdicts {
		byClick[v.ClickID] = v
	}
	clickIDs := make([]string, 0, len(byClick))
	for id := range byClick {
		clickIDs = append(clickIDs, id)
	}
	sort.Strings(clickIDs)

	days := ClickDays(verdicts, loc)
	order := make([]string, 0, len(days))
	for day := range days {
		order = append(order, day)
	}
	sort.Strings(order)

	var rows []adsapi.Row
	for _, day := range order {
		dayRows, err := svc.Search(ctx, ClickCostQuery(days[day], day))
		if err != nil {
			return nil, fmt.Errorf("click cost report for %s: %w", day, err)
		}
		rows = append(rows, dayRows...)
	}

	alerts := make([]models.ReconciledAlert, 0, len(rows))
	matched := make(map[string]bool, len(rows))
	for _, row := range rows {
		alert, ok := r.reconcileRow(row, byClick, matched)
		if !ok {
			continue
		}
		matched[alert.ClickID] = true
		alerts = append(alerts, alert)
	}

	if missing := len(byClick) - len(matched); missing > 0 {
		r.metrics.IncrementUnreconciledClicks(missing)
		for _, id := range clickIDs {
			if !matched[id] {
				r.logger.Debug("verdict has no cost report row", zap.String("click_id", id))
			}
		}
		r.logger.Info("dropped unreconciled verdicts", zap.Int("count", missing))
	}
	return alerts, nil
}

// reconcileRow validates one report row against the verdict set.
func (r *Reconciler) reconcileRow(row adsapi.Row, byClick map[string]models.FraudVerdict, matched map[string]bool) (models.ReconciledAlert, bool) {
	gclid := row.Gclid()
	verdict, ok := byClick[gclid]
	if !ok {
		if gclid != "" {
			r.logger.Warn("report row for unrequested click id", zap.String("click_id", gclid))
		}
		return models.ReconciledAlert{}, false
	}
	if matched[gclid] {
		return models.ReconciledAlert{}, false
	}

	alert := models.ReconciledAlert{
		FraudVerdict: verdict,
		CampaignID:   row.CampaignID(),
		AdGroupID:    row.AdGroupID(),
	}
	if cost, ok := row.Metrics.Cost(); ok {
		if cost.IsNegative() {
			r.logger.Warn("rejecting report row with negative cost",
				zap.String("click_id", gclid),
				zap.String("cost", cost.String()))
			return models.ReconciledAlert{}, false
		}
		alert.Cost = cost
	}
	return alert, true
}
