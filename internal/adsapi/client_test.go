package adsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/observability"
)

func newTestFactory(t *testing.T, handler http.HandlerFunc) (*ClientFactory, *observability.MockMetricsRegistry) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	metrics := observability.NewMockMetricsRegistry()
	factory := NewClientFactory(FactoryConfig{
		BaseURL:        server.URL,
		Version:        "v17",
		DeveloperToken: "dev-token",
		Timeout:        2 * time.Second,
	}, zap.NewNop(), metrics)
	return factory, metrics
}

func TestClient_SearchPaginatesAndSendsHeaders(t *testing.T) {
	calls := 0
	factory, metrics := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v17/customers/1234567890/googleAds:search", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "dev-token", r.Header.Get("developer-token"))
		assert.Equal(t, "9999999999", r.Header.Get("login-customer-id"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "FROM click_view")

		w.Header().Set("Content-Type", "application/json")
		if req.PageToken == "" {
			_, _ = w.Write([]byte(`{"results":[{"clickView":{"gclid":"g1"},"campaign":{"id":"100"},"metrics":{"costMicros":"500000"}}],"nextPageToken":"p2"}`))
			return
		}
		assert.Equal(t, "p2", req.PageToken)
		_, _ = w.Write([]byte(`{"results":[{"clickView":{"gclid":"g2"},"metrics":{"costMicros":1250000}}]}`))
	})

	client := factory.ForCustomer(Credentials{AccessToken: "access", CustomerID: "123-456-7890", LoginCustomerID: "999-999-9999"})
	rows, err := client.Search(context.Background(), Query{
		Entity:      "click_view",
		Attributes:  []string{"click_view.gclid", "campaign.id"},
		Metrics:     []string{"metrics.cost_micros"},
		Constraints: []string{In("click_view.gclid", []string{"g1", "g2"})},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, calls)

	assert.Equal(t, "g1", rows[0].Gclid())
	assert.Equal(t, "100", rows[0].CampaignID())
	cost, ok := rows[0].Metrics.Cost()
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("0.5").Equal(cost))

	assert.Equal(t, "", rows[1].CampaignID())
	cost, ok = rows[1].Metrics.Cost()
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1.25").Equal(cost))

	assert.Equal(t, 2, metrics.Count("ads_api:search:success"))
}

func TestClient_MutateGroupsByEntity(t *testing.T) {
	var paths []string
	factory, _ := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var req struct {
			Operations     []map[string]json.RawMessage `json:"operations"`
			PartialFailure bool                         `json:"partialFailure"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.PartialFailure)

		switch r.URL.Path {
		case "/v17/customers/1234567890/campaignCriteria:mutate":
			require.Len(t, req.Operations, 2)
			var crit CampaignCriterion
			require.NoError(t, json.Unmarshal(req.Operations[0]["create"], &crit))
			assert.Equal(t, "customers/1234567890/campaigns/100", crit.Campaign)
			assert.True(t, crit.Negative)
			assert.Equal(t, "1.2.3.4", crit.IPBlock.IPAddress)
			_, _ = w.Write([]byte(`{"results":[{"resourceName":"customers/1234567890/campaignCriteria/100~1"},{}],
				"partialFailureError":{"message":"1 failed","details":[{"errors":[{"errorCode":{"criterionError":"INVALID_IP_ADDRESS"},"message":"bad ip"}]}]}}`))
		case "/v17/customers/1234567890/adGroupCriteria:mutate":
			require.Len(t, req.Operations, 1)
			_, _ = w.Write([]byte(`{"results":[{"resourceName":"customers/1234567890/adGroupCriteria/10~5"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	client := factory.ForCustomer(Credentials{AccessToken: "access", CustomerID: "1234567890"})
	result, err := client.Mutate(context.Background(), []Operation{
		BlockIP("1234567890", "100", "1.2.3.4"),
		NegativeBroadKeyword("1234567890", "10", "free stuff"),
		BlockIP("1234567890", "100", "not-an-ip"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/v17/customers/1234567890/campaignCriteria:mutate",
		"/v17/customers/1234567890/adGroupCriteria:mutate",
	}, paths)
	assert.Len(t, result.ResourceNames, 2)
	assert.Equal(t, []string{"bad ip"}, result.Failures)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		manager    bool
		permission bool
		rateLimit  bool
	}{
		{
			name:    "manager account",
			status:  http.StatusBadRequest,
			body:    `{"error":{"code":400,"message":"Request contains an invalid argument.","status":"INVALID_ARGUMENT","details":[{"errors":[{"errorCode":{"queryError":"REQUESTED_METRICS_FOR_MANAGER"},"message":"Metrics cannot be requested for a manager account."}]}]}}`,
			manager: true,
		},
		{
			name:       "permission denied",
			status:     http.StatusForbidden,
			body:       `{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED","details":[{"errors":[{"errorCode":{"authorizationError":"USER_PERMISSION_DENIED"}}]}]}}`,
			permission: true,
		},
		{
			name:      "quota",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			rateLimit: true,
		},
		{
			name:   "plain text",
			status: http.StatusBadGateway,
			body:   "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, _ := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := factory.ForCustomer(Credentials{AccessToken: "a", CustomerID: "1"}).Probe(context.Background())
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.manager, IsManagerAccountError(err))
			assert.Equal(t, tt.permission, IsPermissionDenied(err))
			assert.Equal(t, tt.rateLimit, IsRateLimited(err))
		})
	}
}

func TestClient_ListAccessibleCustomers(t *testing.T) {
	factory, _ := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v17/customers:listAccessibleCustomers", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"resourceNames":["customers/111","customers/222"]}`))
	})

	ids, err := factory.ForCustomer(Credentials{AccessToken: "a", CustomerID: "1"}).ListAccessibleCustomers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)
}

func TestClient_MissingCredentials(t *testing.T) {
	factory, _ := newTestFactory(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := factory.ForCustomer(Credentials{CustomerID: "1"}).Probe(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}
