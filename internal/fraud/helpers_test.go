package fraud

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

var testNow = time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC)

func click(id, ip, ua string, at time.Time) models.ClickEvent {
	return models.ClickEvent{
		TenantID:     "t1",
		AdsAccountID: "acct-1",
		ClickID:      id,
		SourceIP:     ip,
		UserAgent:    ua,
		LandingURL:   "https://example.com/landing",
		ObservedAt:   at,
	}
}

func clickRow(gclid, costMicros, campaign, adGroup string) adsapi.Row {
	row := adsapi.Row{ClickView: &adsapi.ClickView{Gclid: gclid}}
	if costMicros != "" {
		row.Metrics = &adsapi.Metrics{CostMicros: json.Number(costMicros)}
	}
	if campaign != "" {
		row.Campaign = &adsapi.Resource{ID: campaign}
	}
	if adGroup != "" {
		row.AdGroup = &adsapi.Resource{ID: adGroup}
	}
	return row
}

type engineFixture struct {
	engine  *Engine
	ledger  *ledger.MemoryLedger
	store   *db.MemoryStore
	ads     *adsapi.Fake
	metrics *observability.MockMetricsRegistry
	account *models.AdsAccount
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		ledger:  ledger.NewMemoryLedger(),
		store:   db.NewMemoryStore(),
		ads:     &adsapi.Fake{},
		metrics: observability.NewMockMetricsRegistry(),
	}
	f.account = &models.AdsAccount{
		TenantID:    "t1",
		CustomerID:  "1234567890",
		State:       models.StateConnected,
		Credentials: models.Credentials{AccessToken: "token"},
	}
	require.NoError(t, f.store.SaveAccount(context.Background(), f.account))

	f.engine = NewEngine(Deps{
		Ledger: f.ledger,
		Store:  f.store,
		Ads:    f.ads,
	}, Config{
		DeveloperToken:      "dev-token",
		BotSignatures:       []string{"bot", "spider", "crawler", "headless", "slurp", "googlebot"},
		WasteClickFloor:     DefaultWasteClickFloor,
		DispatchConcurrency: 2,
		DispatchTimeout:     time.Minute,
	}, zap.NewNop(), f.metrics)
	f.engine.now = func() time.Time { return testNow }
	return f
}

func (f *engineFixture) appendClicks(t *testing.T, events ...models.ClickEvent) {
	t.Helper()
	for i := range events {
		events[i].AdsAccountID = f.account.ID
	}
	require.NoError(t, f.ledger.Append(context.Background(), events...))
}

func waitDispatch(t *testing.T, task *DispatchTask) []CampaignResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := task.Wait(ctx)
	require.NoError(t, err)
	return res
}
