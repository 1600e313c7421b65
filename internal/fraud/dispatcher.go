package fraud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

// SuppressionRequest maps a campaign id to the distinct, sorted IPs to block.
type SuppressionRequest map[string][]string

// BuildSuppressionRequest groups alerts that carry a campaign by campaign
// and deduplicates their IPs. Alerts without a valid IP are left out.
func BuildSuppressionRequest(alerts []models.ReconciledAlert) SuppressionRequest {
	sets := make(map[string]map[string]struct{})
	for _, a := range alerts {
		if !a.HasCampaign() || !ValidIP(a.SourceIP) {
			continue
		}
		if sets[a.CampaignID] == nil {
			sets[a.CampaignID] = make(map[string]struct{})
		}
		sets[a.CampaignID][a.SourceIP] = struct{}{}
	}

	req := make(SuppressionRequest, len(sets))
	for campaign, ips := range sets {
		list := make([]string, 0, len(ips))
		for ip := range ips {
			list = append(list, ip)
		}
		sort.Strings(list)
		req[campaign] = list
	}
	return req
}

// Campaigns returns the campaign ids in sorted order.
func (r SuppressionRequest) Campaigns() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CampaignResult is the outcome of one campaign's block mutation.
type CampaignResult struct {
	CampaignID string   `json:"campaign_id"`
	IPs        []string `json:"ips"`
	Blocked    int      `json:"blocked"`
	Failures   []string `json:"failures,omitempty"`
	Err        error    `json:"-"`
}

// DispatchTask tracks a background suppression dispatch.
type DispatchTask = Task[[]CampaignResult]

// Dispatcher issues IP block mutations per campaign.
type Dispatcher struct {
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     observability.MetricsRegistry
}

// NewDispatcher creates a Dispatcher that runs at most concurrency campaign
// mutations at once and gives a whole dispatch timeout to finish.
func NewDispatcher(concurrency int, timeout time.Duration, logger *zap.Logger, metrics observability.MetricsRegistry) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{concurrency: concurrency, timeout: timeout, logger: logger, metrics: metrics}
}

// Dispatch starts blocking the alerts' IPs in the background and returns
// immediately. The dispatch outlives ctx cancellation but keeps its values.
// Campaign failures are logged and reported in the results, never as an
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, svc adsapi.Service, customerID string, alerts []models.ReconciledAlert) *DispatchTask {
	req := BuildSuppressionRequest(alerts)
	if len(req) == 0 {
		return completedTask[[]CampaignResult](nil, nil)
	}

	task := newTask[[]CampaignResult]()
	bg := context.WithoutCancel(ctx)
	go func() {
		var cancel context.CancelFunc = func() {}
		if d.timeout > 0 {
			bg, cancel = context.WithTimeout(bg, d.timeout)
		}
		defer cancel()
		task.finish(d.run(bg, svc, customerID, req), nil)
	}()
	return task
}

func (d *Dispatcher) run(ctx context.Context, svc adsapi.Service, customerID string, req SuppressionRequest) []CampaignResult {
	ctx, span := tracer.Start(ctx, "fraud.Dispatch", trace.WithAttributes(
		attribute.String("ads.customer_id", customerID),
		attribute.Int("suppression.campaigns", len(req)),
	))
	defer span.End()

	campaigns := req.Campaigns()
	results := make([]CampaignResult, len(campaigns))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, campaignID := range campaigns {
		g.Go(func() error {
			results[i] = d.blockCampaign(ctx, svc, customerID, campaignID, req[campaignID])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *Dispatcher) blockCampaign(ctx context.Context, svc adsapi.Service, customerID, campaignID string, ips []string) CampaignResult {
	res := CampaignResult{CampaignID: campaignID, IPs: ips}
	log := d.logger.With(zap.String("campaign_id", campaignID), zap.Int("ips", len(ips)))

	ops := make([]adsapi.Operation, 0, len(ips))
	for _, ip := range ips {
		ops = append(ops, adsapi.BlockIP(customerID, campaignID, ip))
	}

	out, err := svc.Mutate(ctx, ops)
	if err != nil {
		d.metrics.IncrementSuppressionMutations("failure")
		log.Error("ip exclusion mutate failed", zap.Error(err))
		res.Err = fmt.Errorf("block ips on campaign %s: %w", campaignID, err)
		return res
	}

	res.Blocked = len(out.ResourceNames)
	res.Failures = out.Failures
	if len(out.Failures) > 0 {
		d.metrics.IncrementSuppressionMutations("partial")
		log.Warn("ip exclusion partially applied", zap.Strings("failures", out.Failures))
		return res
	}
	d.metrics.IncrementSuppressionMutations("success")
	log.Info("ip exclusions applied", zap.Int("blocked", res.Blocked))
	return res
}
