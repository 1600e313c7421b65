package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/models"
)

// dispatchWait bounds how long run_fraud_pass waits for IP suppression
// before answering with the results collected so far.
const dispatchWait = 30 * time.Second

type RunFraudPassInput struct {
	TenantID       string   `json:"tenant_id"`
	AdsAccountID   string   `json:"ads_account_id"`
	ClickThreshold *int     `json:"click_threshold,omitempty"`
	WindowHours    *float64 `json:"window_hours,omitempty"`
}

type FraudAlert struct {
	ClickID    string `json:"click_id"`
	IP         string `json:"ip"`
	Reason     string `json:"reason"`
	Cost       string `json:"cost"`
	CampaignID string `json:"campaign_id,omitempty"`
	AdGroupID  string `json:"ad_group_id,omitempty"`
	DetectedAt string `json:"detected_at"`
}

type CampaignSuppression struct {
	CampaignID string `json:"campaign_id"`
	BlockedIPs int    `json:"blocked_ips"`
	Failed     bool   `json:"failed"`
}

type RunFraudPassOutput struct {
	RunID          string                `json:"run_id"`
	RiskLevel      string                `json:"risk_level"`
	HighRiskAlerts int                   `json:"high_risk_alerts"`
	TotalCost      string                `json:"total_cost"`
	Threshold      int                   `json:"threshold"`
	WindowStart    string                `json:"window_start"`
	WindowEnd      string                `json:"window_end"`
	Alerts         []FraudAlert          `json:"alerts"`
	Suppression    []CampaignSuppression `json:"suppression"`
	// SuppressionPending is set when dispatch was still running at reply time.
	SuppressionPending bool `json:"suppression_pending"`
}

type AnalyzeWasteInput struct {
	TenantID     string `json:"tenant_id"`
	AdsAccountID string `json:"ads_account_id"`
	DateRange    string `json:"date_range,omitempty"`
}

type WastedTerm struct {
	SearchTerm string `json:"search_term"`
	Cost       string `json:"cost"`
	Clicks     int64  `json:"clicks"`
	CampaignID string `json:"campaign_id,omitempty"`
	AdGroupID  string `json:"ad_group_id,omitempty"`
}

type AnalyzeWasteOutput struct {
	DateRange               string       `json:"date_range"`
	TotalSearchTerms        int          `json:"total_search_terms"`
	SuggestedNegatives      int          `json:"suggested_negatives"`
	PotentialMonthlySavings string       `json:"potential_monthly_savings"`
	WastedClicks            int64        `json:"wasted_clicks"`
	Keywords                []string     `json:"keywords"`
	TopBadTerms             []WastedTerm `json:"top_bad_terms"`
}

type ApplyNegativeKeywordsInput struct {
	TenantID     string   `json:"tenant_id"`
	AdsAccountID string   `json:"ads_account_id"`
	AdGroupID    string   `json:"ad_group_id"`
	Keywords     []string `json:"keywords"`
}

type ApplyNegativeKeywordsOutput struct {
	Success bool   `json:"success"`
	Applied int    `json:"applied"`
	Message string `json:"message"`
}

// FraudToolServer exposes the fraud engine as MCP tools.
type FraudToolServer struct {
	engine *fraud.Engine
	logger *zap.Logger
}

// RunFraudPass implements the run_fraud_pass tool.
func (s *FraudToolServer) RunFraudPass(ctx context.Context, req *mcp.CallToolRequest, input RunFraudPassInput) (*mcp.CallToolResult, RunFraudPassOutput, error) {
	res, err := s.engine.RunFraudPass(ctx, input.TenantID, input.AdsAccountID, fraud.PassOptions{
		ClickThreshold: input.ClickThreshold,
		WindowHours:    input.WindowHours,
	})
	if err != nil {
		s.logger.Error("run_fraud_pass failed", zap.Error(err))
		return nil, RunFraudPassOutput{}, err
	}

	out := RunFraudPassOutput{
		RunID:          res.RunID,
		RiskLevel:      res.RiskLevel,
		HighRiskAlerts: res.HighRiskCount,
		TotalCost:      res.TotalCost.StringFixed(2),
		Threshold:      res.Threshold,
		WindowStart:    res.WindowStart.Format(time.RFC3339),
		WindowEnd:      res.WindowEnd.Format(time.RFC3339),
		Alerts:         alertsOut(res.Alerts),
		Suppression:    []CampaignSuppression{},
	}

	waitCtx, cancel := context.WithTimeout(ctx, dispatchWait)
	defer cancel()
	results, err := res.Dispatch.Wait(waitCtx)
	if err != nil {
		out.SuppressionPending = true
		return nil, out, nil
	}
	for _, r := range results {
		out.Suppression = append(out.Suppression, CampaignSuppression{
			CampaignID: r.CampaignID,
			BlockedIPs: r.Blocked,
			Failed:     r.Err != nil || len(r.Failures) > 0,
		})
	}
	return nil, out, nil
}

func alertsOut(alerts []models.Alert) []FraudAlert {
	out := make([]FraudAlert, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, FraudAlert{
			ClickID:    a.ClickID,
			IP:         a.SourceIP,
			Reason:     string(a.Reason),
			Cost:       a.Cost.StringFixed(2),
			CampaignID: a.CampaignID,
			AdGroupID:  a.AdGroupID,
			DetectedAt: a.DetectedAt.Format(time.RFC3339),
		})
	}
	return out
}

// AnalyzeWaste implements the analyze_waste tool.
func (s *FraudToolServer) AnalyzeWaste(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeWasteInput) (*mcp.CallToolResult, AnalyzeWasteOutput, error) {
	res, err := s.engine.RunWasteAnalysis(ctx, input.TenantID, input.AdsAccountID, input.DateRange)
	if err != nil {
		s.logger.Error("analyze_waste failed", zap.Error(err))
		return nil, AnalyzeWasteOutput{}, err
	}
	out := AnalyzeWasteOutput{
		DateRange:               res.DateRange,
		TotalSearchTerms:        res.Summary.TotalSearchTerms,
		SuggestedNegatives:      res.Summary.SuggestedNegatives,
		PotentialMonthlySavings: res.Summary.PotentialMonthlySavings.StringFixed(2),
		WastedClicks:            res.Summary.WastedClicks,
		Keywords:                res.Summary.Keywords,
		TopBadTerms:             make([]WastedTerm, 0, len(res.Suggestions)),
	}
	for _, sg := range res.Suggestions {
		out.TopBadTerms = append(out.TopBadTerms, WastedTerm{
			SearchTerm: sg.SearchTerm,
			Cost:       sg.Cost.StringFixed(2),
			Clicks:     sg.Clicks,
			CampaignID: sg.CampaignID,
			AdGroupID:  sg.AdGroupID,
		})
	}
	return nil, out, nil
}

// ApplyNegativeKeywords implements the apply_negative_keywords tool.
func (s *FraudToolServer) ApplyNegativeKeywords(ctx context.Context, req *mcp.CallToolRequest, input ApplyNegativeKeywordsInput) (*mcp.CallToolResult, ApplyNegativeKeywordsOutput, error) {
	applied, err := s.engine.ApplyNegativeKeywords(ctx, input.TenantID, input.AdsAccountID, input.AdGroupID, input.Keywords)
	if err != nil {
		s.logger.Error("apply_negative_keywords failed", zap.Error(err))
		return nil, ApplyNegativeKeywordsOutput{}, err
	}
	return nil, ApplyNegativeKeywordsOutput{
		Success: true,
		Applied: applied,
		Message: fmt.Sprintf("added %d negative keywords to ad group %s", applied, input.AdGroupID),
	}, nil
}

// newMCPServer registers the fraud tools on a new MCP server.
func newMCPServer(tools *FraudToolServer, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "clickguard",
		Version: version,
	}, nil)

	account := map[string]interface{}{
		"tenant_id": map[string]interface{}{
			"type":        "string",
			"description": "Tenant that owns the ads account",
		},
		"ads_account_id": map[string]interface{}{
			"type":        "string",
			"description": "Connected ads account id",
		},
	}
	with := func(extra map[string]interface{}) map[string]interface{} {
		props := map[string]interface{}{}
		for k, v := range account {
			props[k] = v
		}
		for k, v := range extra {
			props[k] = v
		}
		return props
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_fraud_pass",
		Description: "Detect fraudulent clicks in the trailing window, record alerts and block the offending IPs",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": with(map[string]interface{}{
				"click_threshold": map[string]interface{}{
					"type":        "integer",
					"minimum":     models.MinClickThreshold,
					"maximum":     models.MaxClickThreshold,
					"description": "Clicks per IP above which all of the IP's clicks are fraud (optional, tenant setting by default)",
				},
				"window_hours": map[string]interface{}{
					"type":             "number",
					"exclusiveMinimum": 0,
					"maximum":          models.MaxWindowHours,
					"description":      "Trailing window length in hours (optional, tenant setting by default)",
				},
			}),
			"required": []string{"tenant_id", "ads_account_id"},
		},
	}, tools.RunFraudPass)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_waste",
		Description: "Find search terms that spent money without converting and suggest negative keywords",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": with(map[string]interface{}{
				"date_range": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"LAST_7_DAYS", "LAST_14_DAYS", "LAST_30_DAYS", "LAST_90_DAYS", "THIS_MONTH", "LAST_MONTH"},
					"description": "Reporting range (optional, defaults to LAST_30_DAYS)",
				},
			}),
			"required": []string{"tenant_id", "ads_account_id"},
		},
	}, tools.AnalyzeWaste)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "apply_negative_keywords",
		Description: "Add negative broad-match keywords to an ad group",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": with(map[string]interface{}{
				"ad_group_id": map[string]interface{}{
					"type":        "string",
					"description": "Ad group to add the negatives to",
				},
				"keywords": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"minItems":    1,
					"description": "Keywords to add",
				},
			}),
			"required": []string{"tenant_id", "ads_account_id", "ad_group_id", "keywords"},
		},
	}, tools.ApplyNegativeKeywords)

	return server
}
