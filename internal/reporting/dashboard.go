// Package reporting builds dashboard statistics from recorded fraud alerts
// and the ads account's click report.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/models"
)

var tracer = otel.Tracer("clickguard/reporting")

const (
	// DashboardDays is the length of the dashboard window.
	DashboardDays = 7
	// RecentAlertLimit caps the recent alerts listed on the dashboard.
	RecentAlertLimit = 10
)

const dateLayout = "2006-01-02"

// DailyClicks is one day of the fraud versus valid chart.
type DailyClicks struct {
	Date  string `json:"date"`  // UTC date, YYYY-MM-DD
	Valid int64  `json:"valid"` // Clicks reported by the ads account
	Fraud int64  `json:"fraud"` // Alerts recorded that day
}

// DashboardStats summarises the last DashboardDays of fraud protection.
type DashboardStats struct {
	TenantID      string          `json:"tenant_id"`
	Since         time.Time       `json:"since"`
	SavedBudget   decimal.Decimal `json:"saved_budget"`   // Sum of alert cost
	BlockedIPs    int             `json:"blocked_ips"`    // Distinct alerted source IPs
	TotalAlerts   int             `json:"total_alerts"`   // Alerts in the window
	ValidClicks   int64           `json:"valid_clicks"`   // Clicks from the ads report, 0 without one
	DetectionRate *float64        `json:"detection_rate"` // Percent of clicks flagged; nil without a click report
	Daily         []DailyClicks   `json:"daily"`          // Oldest day first
	RecentAlerts  []models.Alert  `json:"recent_alerts"`  // Newest first
}

// Dashboard computes DashboardStats.
type Dashboard struct {
	alerts db.AlertStore
	logger *zap.Logger
	now    func() time.Time
}

// NewDashboard creates a Dashboard over alerts.
func NewDashboard(alerts db.AlertStore, logger *zap.Logger) *Dashboard {
	return &Dashboard{alerts: alerts, logger: logger, now: time.Now}
}

// DailyClicksQuery is the per-day click report over the dashboard window.
func DailyClicksQuery() adsapi.Query {
	return adsapi.Query{
		Entity:     "campaign",
		Attributes: []string{"segments.date"},
		Metrics:    []string{"metrics.clicks"},
		DateRange:  adsapi.DateRangeLast7Days,
	}
}

// Stats returns the tenant's dashboard. accountID may be empty to cover all
// of the tenant's accounts. When svc is nil, or the click report fails,
// valid clicks stay zero and the detection rate is omitted.
func (d *Dashboard) Stats(ctx context.Context, tenantID, accountID string, svc adsapi.Service) (*DashboardStats, error) {
	ctx, span := tracer.Start(ctx, "reporting.Stats", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ads_account.id", accountID),
	))
	defer span.End()

	now := d.now().UTC()
	since := now.AddDate(0, 0, -DashboardDays)
	filter := db.AlertFilter{TenantID: tenantID, AdsAccountID: accountID, Since: since}

	alerts, err := d.alerts.ListAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	blocked, err := d.alerts.DistinctIPCount(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count blocked ips: %w", err)
	}

	stats := &DashboardStats{
		TenantID:    tenantID,
		Since:       since,
		SavedBudget: decimal.Zero,
		BlockedIPs:  blocked,
		TotalAlerts: len(alerts),
		Daily:       emptyDays(now),
	}
	index := make(map[string]int, len(stats.Daily))
	for i, day := range stats.Daily {
		index[day.Date] = i
	}

	for _, a := range alerts {
		stats.SavedBudget = stats.SavedBudget.Add(a.Cost)
		if i, ok := index[a.CreatedAt.UTC().Format(dateLayout)]; ok {
			stats.Daily[i].Fraud++
		}
	}
	stats.RecentAlerts = alerts[:min(len(alerts), RecentAlertLimit)]
	if stats.RecentAlerts == nil {
		stats.RecentAlerts = []models.Alert{}
	}

	if svc == nil {
		return stats, nil
	}
	rows, err := svc.Search(ctx, DailyClicksQuery())
	if err != nil {
		d.logger.Warn("click report unavailable for dashboard",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return stats, nil
	}
	for _, row := range rows {
		i, ok := index[row.Date()]
		if !ok {
			continue
		}
		clicks, _ := row.Metrics.ClickCount()
		stats.Daily[i].Valid += clicks
		stats.ValidClicks += clicks
	}
	rate := DetectionRate(stats.ValidClicks, int64(len(alerts)))
	stats.DetectionRate = &rate
	return stats, nil
}

// DetectionRate returns fraud as a percentage of valid plus fraud clicks,
// or 0 when there were none.
func DetectionRate(valid, fraud int64) float64 {
	total := valid + fraud
	if total == 0 {
		return 0
	}
	return float64(fraud) / float64(total) * 100
}

// emptyDays returns one zeroed bucket per day ending today, oldest first.
func emptyDays(now time.Time) []DailyClicks {
	days := make([]DailyClicks, DashboardDays)
	for i := range days {
		days[i].Date = now.AddDate(0, 0, i-DashboardDays+1).Format(dateLayout)
	}
	return days
}
