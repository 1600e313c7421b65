// Package adsapi is a small client for the ads reporting and mutation API.
//
// A Client is bound to one set of credentials. Callers obtain one per
// account from a Factory, so no credentials are shared between tenants.
package adsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/observability"
	"github.com/patrickwarner/clickguard/internal/ratelimit"
)

var tracer = otel.Tracer("clickguard/adsapi")

// maxPages bounds pagination of a single search.
const maxPages = 100

// Credentials identify the caller and the customer account a Client acts on.
type Credentials struct {
	DeveloperToken  string
	AccessToken     string
	CustomerID      string
	LoginCustomerID string
}

// Service is the ads reporting and mutation surface used by the engine.
type Service interface {
	// Search runs a report query and returns every result row.
	Search(ctx context.Context, q Query) ([]Row, error)
	// Mutate applies operations best-effort; per-operation failures are
	// reported in MutateResult.Failures rather than as an error.
	Mutate(ctx context.Context, ops []Operation) (*MutateResult, error)
	// Probe runs a low-cost report against the customer to confirm access.
	Probe(ctx context.Context) (*Customer, error)
	// ListAccessibleCustomers returns customer ids reachable by the credential.
	ListAccessibleCustomers(ctx context.Context) ([]string, error)
}

// Factory builds a Service bound to explicit credentials.
type Factory interface {
	ForCustomer(creds Credentials) Service
}

// ClientFactory creates Clients that share an HTTP transport, a rate
// limiter and instrumentation, but never credentials.
type ClientFactory struct {
	baseURL        string
	version        string
	developerToken string
	httpClient     *http.Client
	limiter        *ratelimit.CustomerLimiter
	logger         *zap.Logger
	metrics        observability.MetricsRegistry
}

// FactoryConfig configures a ClientFactory.
type FactoryConfig struct {
	BaseURL        string
	Version        string
	DeveloperToken string
	Timeout        time.Duration
	Limiter        *ratelimit.CustomerLimiter
}

// NewClientFactory creates a ClientFactory.
func NewClientFactory(cfg FactoryConfig, logger *zap.Logger, metrics observability.MetricsRegistry) *ClientFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &ClientFactory{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		version:        cfg.Version,
		developerToken: cfg.DeveloperToken,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: cfg.Limiter,
		logger:  logger.Named("adsapi"),
		metrics: metrics,
	}
}

// ForCustomer returns a Client bound to creds. The factory's developer
// token is used when creds carries none.
func (f *ClientFactory) ForCustomer(creds Credentials) Service {
	if creds.DeveloperToken == "" {
		creds.DeveloperToken = f.developerToken
	}
	creds.CustomerID = NormalizeCustomerID(creds.CustomerID)
	creds.LoginCustomerID = NormalizeCustomerID(creds.LoginCustomerID)
	return &Client{factory: f, creds: creds}
}

// NormalizeCustomerID strips dashes and whitespace from a customer id.
func NormalizeCustomerID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// Client is a Service bound to one set of credentials.
type Client struct {
	factory *ClientFactory
	creds   Credentials
}

type searchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchResponse struct {
	Results       []Row  `json:"results"`
	NextPageToken string `json:"nextPageToken"`
}

// Search implements Service.
func (c *Client) Search(ctx context.Context, q Query) ([]Row, error) {
	gaql, err := q.GAQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	ctx, span := tracer.Start(ctx, "adsapi.Search", trace.WithAttributes(
		attribute.String("ads.customer_id", c.creds.CustomerID),
		attribute.String("ads.entity", q.Entity),
	))
	defer span.End()

	path := fmt.Sprintf("/customers/%s/googleAds:search", c.creds.CustomerID)
	var rows []Row
	req := searchRequest{Query: gaql}
	for page := 0; page < maxPages; page++ {
		var resp searchResponse
		if err := c.do(ctx, "search", http.MethodPost, path, req, &resp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search failed")
			return nil, err
		}
		rows = append(rows, resp.Results...)
		if resp.NextPageToken == "" {
			span.SetAttributes(attribute.Int("ads.rows", len(rows)))
			return rows, nil
		}
		req.PageToken = resp.NextPageToken
	}
	c.factory.logger.Warn("search truncated at page limit",
		zap.String("customer_id", c.creds.CustomerID),
		zap.Int("rows", len(rows)))
	return rows, nil
}

type mutateRequest struct {
	Operations     []map[string]any `json:"operations"`
	PartialFailure bool             `json:"partialFailure"`
}

type mutateResponse struct {
	Results []struct {
		ResourceName string `json:"resourceName"`
	} `json:"results"`
	PartialFailureError *struct {
		Message string          `json:"message"`
		Details []failureDetail `json:"details"`
	} `json:"partialFailureError"`
}

// Mutate implements Service. Operations are grouped by entity, preserving
// order, and each group is sent as one partial-failure request.
func (c *Client) Mutate(ctx context.Context, ops []Operation) (*MutateResult, error) {
	if len(ops) == 0 {
		return &MutateResult{}, nil
	}

	ctx, span := tracer.Start(ctx, "adsapi.Mutate", trace.WithAttributes(
		attribute.String("ads.customer_id", c.creds.CustomerID),
		attribute.Int("ads.operations", len(ops)),
	))
	defer span.End()

	var order []string
	groups := make(map[string][]map[string]any)
	for _, op := range ops {
		if op.Entity == "" || op.Operation == "" {
			return nil, fmt.Errorf("mutate operation missing entity or kind")
		}
		if _, seen := groups[op.Entity]; !seen {
			order = append(order, op.Entity)
		}
		groups[op.Entity] = append(groups[op.Entity], map[string]any{op.Operation: op.Resource})
	}

	result := &MutateResult{}
	for _, entity := range order {
		path := fmt.Sprintf("/customers/%s/%s:mutate", c.creds.CustomerID, entity)
		var resp mutateResponse
		body := mutateRequest{Operations: groups[entity], PartialFailure: true}
		if err := c.do(ctx, "mutate", http.MethodPost, path, body, &resp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "mutate failed")
			return result, err
		}
		for _, r := range resp.Results {
			if r.ResourceName != "" {
				result.ResourceNames = append(result.ResourceNames, r.ResourceName)
			}
		}
		if pf := resp.PartialFailureError; pf != nil {
			for _, d := range pf.Details {
				for _, e := range d.Errors {
					result.Failures = append(result.Failures, e.Message)
				}
			}
			if len(result.Failures) == 0 && pf.Message != "" {
				result.Failures = append(result.Failures, pf.Message)
			}
		}
	}
	return result, nil
}

// Probe implements Service. It selects a metric so that manager accounts
// are rejected the same way a real report would reject them.
func (c *Client) Probe(ctx context.Context) (*Customer, error) {
	rows, err := c.Search(ctx, Query{
		Entity:     "customer",
		Attributes: []string{"customer.id", "customer.descriptive_name", "customer.currency_code", "customer.time_zone"},
		Metrics:    []string{"metrics.clicks"},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && rows[0].Customer != nil {
		return rows[0].Customer, nil
	}
	return &Customer{ID: c.creds.CustomerID}, nil
}

// ListAccessibleCustomers implements Service.
func (c *Client) ListAccessibleCustomers(ctx context.Context) ([]string, error) {
	var resp struct {
		ResourceNames []string `json:"resourceNames"`
	}
	if err := c.do(ctx, "list_accessible", http.MethodGet, "/customers:listAccessibleCustomers", nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.ResourceNames))
	for _, name := range resp.ResourceNames {
		ids = append(ids, customerIDFromResource(name))
	}
	return ids, nil
}

// do sends one request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) error {
	if c.creds.AccessToken == "" || (c.creds.CustomerID == "" && operation != "list_accessible") {
		return ErrNoCredentials
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		c.factory.metrics.RecordAdsAPILatency(operation, time.Since(start))
		c.factory.metrics.IncrementAdsAPIRequests(operation, outcome)
	}()

	if err := c.factory.limiter.Wait(ctx, c.creds.CustomerID); err != nil {
		outcome = "rate_limited"
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			outcome = "failure"
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	url := c.factory.baseURL + "/" + c.factory.version + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		outcome = "failure"
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	req.Header.Set("developer-token", c.creds.DeveloperToken)
	if c.creds.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", c.creds.LoginCustomerID)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.factory.httpClient.Do(req)
	if err != nil {
		outcome = "failure"
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.factory.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := parseAPIError(resp.StatusCode, raw)
		if IsRateLimited(apiErr) {
			outcome = "rate_limited"
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		outcome = "failure"
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
