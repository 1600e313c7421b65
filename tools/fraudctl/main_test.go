package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/fraud"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

type cliEnv struct {
	store   *db.MemoryStore
	ledger  *ledger.MemoryLedger
	ads     *adsapi.Fake
	account *models.AdsAccount
	open    appFactory
	closed  int
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{
		store:  db.NewMemoryStore(),
		ledger: ledger.NewMemoryLedger(),
		ads:    &adsapi.Fake{},
		account: &models.AdsAccount{
			TenantID:    "t1",
			CustomerID:  "1234567890",
			State:       models.StateConnected,
			Credentials: models.Credentials{AccessToken: "token"},
		},
	}
	require.NoError(t, env.store.SaveAccount(context.Background(), env.account))

	env.open = func(ctx context.Context, logger *zap.Logger) (*app, func(), error) {
		engine := fraud.NewEngine(fraud.Deps{
			Ledger: env.ledger,
			Store:  env.store,
			Ads:    env.ads,
		}, fraud.Config{
			BotSignatures:       []string{"bot"},
			WasteClickFloor:     fraud.DefaultWasteClickFloor,
			DispatchConcurrency: 1,
			DispatchTimeout:     time.Minute,
		}, logger, observability.NewNoOpRegistry())
		return &app{engine: engine, alerts: env.store}, func() { env.closed++ }, nil
	}
	return env
}

func (env *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(env.open, &out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPassCommand(t *testing.T) {
	env := newCLIEnv(t)
	now := time.Now().UTC()
	require.NoError(t, env.ledger.Append(context.Background(),
		models.ClickEvent{TenantID: "t1", AdsAccountID: env.account.ID, ClickID: "g1", SourceIP: "198.51.100.4", UserAgent: "Googlebot/2.1", ObservedAt: now.Add(-time.Minute)},
		models.ClickEvent{TenantID: "t1", AdsAccountID: env.account.ID, ClickID: "g2", SourceIP: "198.51.100.5", UserAgent: "Mozilla/5.0", ObservedAt: now.Add(-time.Minute)},
	))
	env.ads.SearchFunc = func(adsapi.Credentials, adsapi.Query) ([]adsapi.Row, error) {
		return []adsapi.Row{{
			ClickView: &adsapi.ClickView{Gclid: "g1"},
			Campaign:  &adsapi.Resource{ID: "111"},
			Metrics:   &adsapi.Metrics{CostMicros: json.Number("1250000")},
		}}, nil
	}
	env.ads.MutateFunc = func(_ adsapi.Credentials, ops []adsapi.Operation) (*adsapi.MutateResult, error) {
		return &adsapi.MutateResult{ResourceNames: make([]string, len(ops))}, nil
	}

	out, err := env.run(t, "pass", "--tenant", "t1", "--account", env.account.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "1 alerts, total cost 1.25, risk low")
	assert.Contains(t, out, "198.51.100.4")
	assert.Contains(t, out, "bot_signature")
	assert.Contains(t, out, "campaign 111: blocked 1/1 IPs (ok)")
	assert.Equal(t, 1, env.closed)
}

func TestPassCommandRequiresAccount(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "pass", "--tenant", "t1")
	assert.ErrorIs(t, err, errAccountRequired)
}

func TestPassCommandThresholdOverride(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "pass", "--tenant", "t1", "--account", env.account.ID, "--threshold", "11")
	require.Error(t, err)
	assert.Equal(t, fraud.KindValidation, fraud.KindOf(err))
}

func TestPassCommandRejectsNaNWindow(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "pass", "--tenant", "t1", "--account", env.account.ID, "--window-hours", "NaN")
	require.Error(t, err)
	assert.Equal(t, fraud.KindValidation, fraud.KindOf(err))
	assert.Empty(t, env.ads.Searches())
}

func TestWasteCommandJSON(t *testing.T) {
	env := newCLIEnv(t)
	env.ads.SearchFunc = func(adsapi.Credentials, adsapi.Query) ([]adsapi.Row, error) {
		return []adsapi.Row{{
			SearchTermView: &adsapi.SearchTermView{SearchTerm: "cheap jobs"},
			AdGroup:        &adsapi.Resource{ID: "222"},
			Metrics:        &adsapi.Metrics{CostMicros: "62100000", Clicks: "120", Conversions: "0"},
		}}, nil
	}

	out, err := env.run(t, "waste", "--tenant", "t1", "--account", env.account.ID, "--range", "LAST_7_DAYS", "--json")
	require.NoError(t, err)

	var res fraud.WasteAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "LAST_7_DAYS", res.DateRange)
	assert.Equal(t, []string{"cheap", "jobs"}, res.Summary.Keywords)
	assert.True(t, decimal.RequireFromString("62.1").Equal(res.Summary.PotentialMonthlySavings))
}

func TestApplyNegativesCommand(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "apply-negatives", "--tenant", "t1", "--account", env.account.ID, "--ad-group", "222", "free", " ", "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "added 2 negative keywords to ad group 222")
	assert.Len(t, env.ads.Mutations(), 2)

	_, err = env.run(t, "apply-negatives", "--tenant", "t1", "--account", env.account.ID, "--ad-group", "222")
	assert.Error(t, err)
}

func TestAlertsCommand(t *testing.T) {
	env := newCLIEnv(t)
	now := time.Now().UTC()
	require.NoError(t, env.store.InsertAlerts(context.Background(), []models.Alert{{
		ID:           "a1",
		TenantID:     "t1",
		AdsAccountID: env.account.ID,
		ClickID:      "g9",
		SourceIP:     "192.0.2.50",
		DetectedAt:   now,
		Reason:       models.ReasonThresholdExceeded,
		Cost:         decimal.RequireFromString("0.75"),
		CreatedAt:    now,
	}}))

	out, err := env.run(t, "alerts", "--tenant", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "192.0.2.50")
	assert.Contains(t, out, "0.75")
	assert.Contains(t, out, "threshold_exceeded")
}
