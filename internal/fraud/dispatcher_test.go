package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

func reconciled(id, ip, campaign string) models.ReconciledAlert {
	return models.ReconciledAlert{FraudVerdict: verdict(id, ip), CampaignID: campaign}
}

func TestBuildSuppressionRequest(t *testing.T) {
	req := BuildSuppressionRequest([]models.ReconciledAlert{
		reconciled("c1", "5.5.5.5", "100"),
		reconciled("c2", "1.2.3.4", "100"),
		reconciled("c3", "1.2.3.4", "100"),
		reconciled("c4", "1.2.3.4", "200"),
		reconciled("c5", "6.6.6.6", ""),
		reconciled("c6", "", "300"),
	})

	assert.Equal(t, SuppressionRequest{
		"100": {"1.2.3.4", "5.5.5.5"},
		"200": {"1.2.3.4"},
	}, req)
	assert.Equal(t, []string{"100", "200"}, req.Campaigns())
}

func TestDispatchIsolatesCampaignFailures(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	d := NewDispatcher(2, time.Minute, zap.NewNop(), metrics)
	fake := &adsapi.Fake{
		MutateFunc: func(_ adsapi.Credentials, ops []adsapi.Operation) (*adsapi.MutateResult, error) {
			crit := ops[0].Resource.(adsapi.CampaignCriterion)
			if crit.Campaign == adsapi.CampaignResource("1234567890", "200") {
				return nil, errors.New("campaign removed")
			}
			names := make([]string, len(ops))
			return &adsapi.MutateResult{ResourceNames: names}, nil
		},
	}
	svc := fake.ForCustomer(adsapi.Credentials{CustomerID: "1234567890"})

	task := d.Dispatch(context.Background(), svc, "1234567890", []models.ReconciledAlert{
		reconciled("c1", "1.2.3.4", "100"),
		reconciled("c2", "5.5.5.5", "100"),
		reconciled("c3", "1.2.3.4", "200"),
	})
	results := waitDispatch(t, task)

	require.Len(t, results, 2)
	assert.Equal(t, "100", results[0].CampaignID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].Blocked)
	assert.Equal(t, "200", results[1].CampaignID)
	assert.Error(t, results[1].Err)

	assert.Len(t, fake.Mutations(), 2)
	assert.Equal(t, 1, metrics.Count("suppression_mutations:success"))
	assert.Equal(t, 1, metrics.Count("suppression_mutations:failure"))
}

func TestDispatchOutlivesCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	fake := &adsapi.Fake{
		MutateFunc: func(adsapi.Credentials, []adsapi.Operation) (*adsapi.MutateResult, error) {
			<-release
			return &adsapi.MutateResult{ResourceNames: []string{"x"}}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := NewDispatcher(1, time.Minute, zap.NewNop(), observability.NewNoOpRegistry()).
		Dispatch(ctx, fake.ForCustomer(adsapi.Credentials{}), "1234567890", []models.ReconciledAlert{reconciled("c1", "1.2.3.4", "100")})
	cancel()

	_, _, done := task.Result()
	assert.False(t, done)
	close(release)

	results := waitDispatch(t, task)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDispatchWithoutCampaignsCompletesImmediately(t *testing.T) {
	fake := &adsapi.Fake{}
	task := NewDispatcher(1, time.Minute, zap.NewNop(), observability.NewNoOpRegistry()).
		Dispatch(context.Background(), fake.ForCustomer(adsapi.Credentials{}), "1", []models.ReconciledAlert{reconciled("c1", "1.2.3.4", "")})

	select {
	case <-task.Done():
	default:
		t.Fatal("expected completed task")
	}
	assert.Empty(t, fake.Mutations())
}
