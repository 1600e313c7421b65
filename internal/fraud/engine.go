// Package fraud detects fraudulent ad clicks, prices them from ads
// reporting, records alerts and suppresses the offending IPs.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/accounts"
	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/config"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/ledger"
	"github.com/patrickwarner/clickguard/internal/models"
	"github.com/patrickwarner/clickguard/internal/observability"
)

var tracer = otel.Tracer("clickguard/fraud")

// Risk levels reported with a pass result.
const (
	RiskLow  = "low"
	RiskHigh = "high"
)

// highRiskAlertCount is the alert count above which a pass is high risk.
const highRiskAlertCount = 5

var (
	// ErrAccountNotConnected is returned for passes on accounts that are not connected.
	ErrAccountNotConnected = errors.New("ads account is not connected")
	// ErrInvalidDateRange is returned for an unsupported waste analysis range.
	ErrInvalidDateRange = errors.New("unsupported date range")
	// ErrMissingAdGroup is returned when no ad group is given for negative keywords.
	ErrMissingAdGroup = errors.New("ad group id is required")
)

// Locker serializes passes per ads account across processes.
type Locker interface {
	AcquirePassLock(ctx context.Context, tenantID, accountID string, ttl time.Duration) (string, error)
	ReleasePassLock(ctx context.Context, tenantID, accountID, token string) error
}

// Deps are the engine's collaborators. Locker may be nil for single-process use.
type Deps struct {
	Ledger ledger.Ledger
	Store  db.Store
	Locker Locker
	Ads    adsapi.Factory
}

// Config holds engine tunables.
type Config struct {
	DeveloperToken      string
	DefaultThreshold    int
	DefaultWindowHours  float64
	BotSignatures       []string
	UseUAParser         bool
	WasteClickFloor     int64
	DispatchConcurrency int
	DispatchTimeout     time.Duration
	PassLockTTL         time.Duration
}

// ConfigFrom extracts the engine settings from the service configuration.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		DeveloperToken:      cfg.AdsDeveloperToken,
		DefaultThreshold:    cfg.DefaultClickThreshold,
		DefaultWindowHours:  cfg.DefaultWindowHours,
		BotSignatures:       cfg.BotSignatures,
		UseUAParser:         cfg.BotUAParserEnabled,
		WasteClickFloor:     cfg.WasteClickFloor,
		DispatchConcurrency: cfg.DispatchConcurrency,
		DispatchTimeout:     cfg.DispatchTimeout,
		PassLockTTL:         cfg.PassLockTTL,
	}
}

// Engine runs fraud passes, waste analysis and negative keyword updates.
type Engine struct {
	deps       Deps
	cfg        Config
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
	aggregator *Aggregator
	reconciler *Reconciler
	dispatcher *Dispatcher
	waste      *WasteAnalyzer
	now        func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, cfg Config, logger *zap.Logger, metrics observability.MetricsRegistry) *Engine {
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = models.DefaultClickThreshold
	}
	if cfg.DefaultWindowHours == 0 {
		cfg.DefaultWindowHours = models.DefaultWindowHours
	}
	if cfg.PassLockTTL <= 0 {
		cfg.PassLockTTL = 10 * time.Minute
	}
	return &Engine{
		deps:       deps,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		aggregator: NewAggregator(deps.Ledger),
		reconciler: NewReconciler(logger, metrics),
		dispatcher: NewDispatcher(cfg.DispatchConcurrency, cfg.DispatchTimeout, logger, metrics),
		waste:      NewWasteAnalyzer(cfg.WasteClickFloor, logger, metrics),
		now:        time.Now,
	}
}

// PassOptions override tenant settings for one pass.
type PassOptions struct {
	ClickThreshold *int
	WindowHours    *float64
	// RunID identifies the pass; one is generated when empty.
	RunID string
	// Started, when set, is called once the pass holds the account lock.
	Started func()
}

// FraudPassResult is the outcome of a completed fraud pass.
type FraudPassResult struct {
	RunID         string          `json:"run_id"`
	Alerts        []models.Alert  `json:"alerts"`
	HighRiskCount int             `json:"high_risk_count"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	RiskLevel     string          `json:"risk_level"`
	WindowStart   time.Time       `json:"window_start"`
	WindowEnd     time.Time       `json:"window_end"`
	Threshold     int             `json:"threshold"`
	// Verdicts counts classifier verdicts before dedup and reconciliation.
	Verdicts int `json:"verdicts"`
	// AlreadyAlerted counts verdicts skipped because an earlier pass recorded them.
	AlreadyAlerted int `json:"already_alerted"`
	// Unreconciled counts verdicts dropped for lack of a valid report row.
	Unreconciled int `json:"unreconciled"`
	// Dispatch completes when IP suppression has been attempted for every campaign.
	Dispatch *DispatchTask `json:"-"`
}

// RunFraudPass detects fraudulent clicks for the account's trailing window,
// records an alert for each one the reporting service can price and starts
// suppressing their IPs. It fails without partial results; suppression runs
// in the background and never fails the pass.
func (e *Engine) RunFraudPass(ctx context.Context, tenantID, accountID string, opts PassOptions) (res *FraudPassResult, err error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "fraud.RunFraudPass", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ads_account.id", accountID),
		attribute.String("run.id", runID),
	))
	defer span.End()

	start := e.now()
	log := e.logger.With(
		zap.String("tenant_id", tenantID),
		zap.String("ads_account_id", accountID),
		zap.String("run_id", runID),
	)
	defer func() {
		e.metrics.IncrementFraudPasses(outcome(err))
		e.metrics.RecordFraudPassDuration(time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("fraud pass failed", zap.Error(err))
		}
	}()

	acct, err := e.connectedAccount(ctx, tenantID, accountID, true)
	if err != nil {
		return nil, err
	}
	settings, err := e.passSettings(ctx, tenantID, opts)
	if err != nil {
		return nil, err
	}
	classifier, err := NewClassifier(settings.ClickThreshold, e.cfg.BotSignatures, e.cfg.UseUAParser)
	if err != nil {
		return nil, stageErr(KindValidation, StageConfiguration, err)
	}

	release, err := e.lock(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	defer release()
	if opts.Started != nil {
		opts.Started()
	}

	if err := e.setState(ctx, acct, models.StateAnalyzing); err != nil {
		return nil, err
	}
	defer e.restoreConnected(context.WithoutCancel(ctx), tenantID, accountID, log)

	now := e.now()
	since := now.Add(-settings.Window())
	events, counts, err := e.aggregator.Window(ctx, tenantID, accountID, settings.Window(), now)
	if err != nil {
		return nil, stageErr(KindDataStore, StageAggregate, fmt.Errorf("read click window: %w", err))
	}

	verdicts := classifier.Classify(events, counts, now)
	for _, v := range verdicts {
		e.metrics.IncrementVerdicts(string(v.Reason), 1)
	}

	fresh, err := e.dropAlerted(ctx, tenantID, accountID, verdicts)
	if err != nil {
		return nil, err
	}

	svc := e.deps.Ads.ForCustomer(accounts.APICredentials(acct, e.cfg.DeveloperToken))
	reconciled, err := e.reconciler.Reconcile(ctx, svc, fresh, accountLocation(acct, log))
	if err != nil {
		return nil, stageErr(KindExternalService, StageReconcile, err)
	}

	alerts := make([]models.Alert, 0, len(reconciled))
	total := decimal.Zero
	for _, r := range reconciled {
		alerts = append(alerts, models.Alert{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			AdsAccountID: accountID,
			ClickID:      r.ClickID,
			SourceIP:     r.SourceIP,
			DetectedAt:   r.DetectedAt,
			Reason:       r.Reason,
			Cost:         r.Cost,
			CampaignID:   r.CampaignID,
			AdGroupID:    r.AdGroupID,
			CreatedAt:    now,
		})
		total = total.Add(r.Cost)
	}

	if len(alerts) > 0 {
		if err := e.deps.Store.InsertAlerts(ctx, alerts); err != nil {
			return nil, stageErr(KindDataStore, StagePersist, fmt.Errorf("persist alerts: %w", err))
		}
		e.metrics.IncrementAlertsPersisted(len(alerts))
	}

	res = &FraudPassResult{
		RunID:          runID,
		Alerts:         alerts,
		HighRiskCount:  len(alerts),
		TotalCost:      total,
		RiskLevel:      riskLevel(len(alerts)),
		WindowStart:    since,
		WindowEnd:      now,
		Threshold:      settings.ClickThreshold,
		Verdicts:       len(verdicts),
		AlreadyAlerted: len(verdicts) - len(fresh),
		Unreconciled:   len(fresh) - len(reconciled),
		Dispatch:       e.dispatcher.Dispatch(ctx, svc, acct.CustomerID, reconciled),
	}
	span.SetAttributes(
		attribute.Int("fraud.events", len(events)),
		attribute.Int("fraud.verdicts", len(verdicts)),
		attribute.Int("fraud.alerts", len(alerts)),
	)
	log.Info("fraud pass complete",
		zap.Int("events", len(events)),
		zap.Int("verdicts", len(verdicts)),
		zap.Int("alerts", len(alerts)),
		zap.String("total_cost", total.StringFixed(2)),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func riskLevel(alerts int) string {
	if alerts > highRiskAlertCount {
		return RiskHigh
	}
	return RiskLow
}

// RunWasteAnalysis reports search terms that spent without converting over
// dateRange. An empty dateRange means LAST_30_DAYS.
func (e *Engine) RunWasteAnalysis(ctx context.Context, tenantID, accountID, dateRange string) (res *WasteAnalysis, err error) {
	ctx, span := tracer.Start(ctx, "fraud.RunWasteAnalysis", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ads_account.id", accountID),
		attribute.String("date_range", dateRange),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if dateRange != "" && !ValidWasteDateRange(dateRange) {
		return nil, stageErr(KindValidation, StageWasteAnalysis, fmt.Errorf("%w: %q", ErrInvalidDateRange, dateRange))
	}
	acct, err := e.connectedAccount(ctx, tenantID, accountID, false)
	if err != nil {
		return nil, err
	}
	svc := e.deps.Ads.ForCustomer(accounts.APICredentials(acct, e.cfg.DeveloperToken))
	res, err = e.waste.Analyze(ctx, svc, dateRange)
	if err != nil {
		return nil, stageErr(KindExternalService, StageWasteAnalysis, err)
	}
	e.logger.Info("waste analysis complete",
		zap.String("tenant_id", tenantID),
		zap.String("ads_account_id", accountID),
		zap.Int("search_terms", res.Summary.TotalSearchTerms),
		zap.Int("suggestions", res.Summary.SuggestedNegatives))
	return res, nil
}

// ApplyNegativeKeywords adds keywords as negative broad-match keywords on
// adGroupID and returns how many were added. Blank entries are ignored.
// Every keyword is attempted even when some fail.
func (e *Engine) ApplyNegativeKeywords(ctx context.Context, tenantID, accountID, adGroupID string, keywords []string) (applied int, err error) {
	ctx, span := tracer.Start(ctx, "fraud.ApplyNegativeKeywords", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("ads_account.id", accountID),
		attribute.String("ad_group.id", adGroupID),
		attribute.Int("keywords", len(keywords)),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	keywords = nonBlank(keywords)
	if len(keywords) == 0 {
		return 0, stageErr(KindValidation, StageApplyNegative, ErrNoKeywords)
	}
	if adGroupID == "" {
		return 0, stageErr(KindValidation, StageApplyNegative, ErrMissingAdGroup)
	}
	acct, err := e.connectedAccount(ctx, tenantID, accountID, false)
	if err != nil {
		return 0, err
	}
	svc := e.deps.Ads.ForCustomer(accounts.APICredentials(acct, e.cfg.DeveloperToken))
	applied, err = e.waste.ApplyNegativeKeywords(ctx, svc, acct.CustomerID, adGroupID, keywords)
	e.logger.Info("negative keywords applied",
		zap.String("tenant_id", tenantID),
		zap.String("ad_group_id", adGroupID),
		zap.Int("applied", applied),
		zap.Int("requested", len(keywords)))
	if err != nil {
		return applied, stageErr(KindExternalService, StageApplyNegative, err)
	}
	return applied, nil
}

func nonBlank(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// ValidWasteDateRange reports whether r is accepted by RunWasteAnalysis.
func ValidWasteDateRange(r string) bool {
	switch r {
	case adsapi.DateRangeLast7Days, adsapi.DateRangeLast14Days, adsapi.DateRangeLast30Days,
		adsapi.DateRangeLast90Days, adsapi.DateRangeThisMonth, adsapi.DateRangeLastMonth:
		return true
	}
	return false
}

// connectedAccount loads the account and checks it can be acted on. A pass
// may start on an account left in analyzing by a crashed run; the pass lock
// decides whether another pass is really active.
func (e *Engine) connectedAccount(ctx context.Context, tenantID, accountID string, forPass bool) (*models.AdsAccount, error) {
	acct, err := e.deps.Store.GetAccount(ctx, tenantID, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, stageErr(KindConfiguration, StageConfiguration, fmt.Errorf("ads account %s: %w", accountID, err))
	}
	if err != nil {
		return nil, stageErr(KindDataStore, StageConfiguration, fmt.Errorf("load ads account: %w", err))
	}

	switch acct.State {
	case models.StateConnected:
	case models.StateAnalyzing:
		if !forPass {
			break
		}
		e.logger.Warn("ads account left in analyzing state",
			zap.String("tenant_id", tenantID),
			zap.String("ads_account_id", accountID))
	default:
		return nil, stageErr(KindConfiguration, StageConfiguration,
			fmt.Errorf("%w: state %s", ErrAccountNotConnected, acct.State))
	}
	if acct.Credentials.Empty() || acct.CustomerID == "" {
		return nil, stageErr(KindConfiguration, StageConfiguration, adsapi.ErrNoCredentials)
	}
	return acct, nil
}

// accountLocation returns the account's reporting time zone, or UTC when
// it is unknown.
func accountLocation(acct *models.AdsAccount, log *zap.Logger) *time.Location {
	if acct.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(acct.TimeZone)
	if err != nil {
		log.Warn("unknown account time zone, using UTC",
			zap.String("time_zone", acct.TimeZone),
			zap.Error(err))
		return time.UTC
	}
	return loc
}

// passSettings merges stored tenant settings, defaults and overrides.
func (e *Engine) passSettings(ctx context.Context, tenantID string, opts PassOptions) (models.TenantSettings, error) {
	settings := models.TenantSettings{
		TenantID:       tenantID,
		ClickThreshold: e.cfg.DefaultThreshold,
		WindowHours:    e.cfg.DefaultWindowHours,
	}
	stored, found, err := e.deps.Store.TenantSettings(ctx, tenantID)
	if err != nil {
		return settings, stageErr(KindDataStore, StageConfiguration, fmt.Errorf("load tenant settings: %w", err))
	}
	if found {
		if err := stored.Validate(); err != nil {
			return settings, stageErr(KindConfiguration, StageConfiguration, fmt.Errorf("stored tenant settings: %w", err))
		}
		settings = stored
	}

	if opts.ClickThreshold != nil {
		settings.ClickThreshold = *opts.ClickThreshold
	}
	if opts.WindowHours != nil {
		settings.WindowHours = *opts.WindowHours
	}
	if err := settings.Validate(); err != nil {
		return settings, stageErr(KindValidation, StageConfiguration, err)
	}
	return settings, nil
}

// lock takes the account's pass lock and returns its release func.
func (e *Engine) lock(ctx context.Context, tenantID, accountID string) (func(), error) {
	if e.deps.Locker == nil {
		return func() {}, nil
	}
	token, err := e.deps.Locker.AcquirePassLock(ctx, tenantID, accountID, e.cfg.PassLockTTL)
	if errors.Is(err, db.ErrPassInProgress) {
		return nil, stageErr(KindConflict, StageLock, err)
	}
	if err != nil {
		return nil, stageErr(KindDataStore, StageLock, err)
	}
	return func() {
		if err := e.deps.Locker.ReleasePassLock(context.WithoutCancel(ctx), tenantID, accountID, token); err != nil {
			e.logger.Warn("failed to release pass lock", zap.Error(err))
		}
	}, nil
}

func (e *Engine) setState(ctx context.Context, acct *models.AdsAccount, to models.ConnectionState) error {
	if acct.State != to {
		if err := accounts.Transition(acct.State, to); err != nil {
			return stageErr(KindConfiguration, StageConfiguration, err)
		}
	}
	if err := e.deps.Store.UpdateAccountState(ctx, acct.TenantID, acct.ID, to); err != nil {
		return stageErr(KindDataStore, StageConfiguration, fmt.Errorf("set account state: %w", err))
	}
	return nil
}

// restoreConnected moves the account back to connected unless it was
// disconnected while the pass ran.
func (e *Engine) restoreConnected(ctx context.Context, tenantID, accountID string, log *zap.Logger) {
	acct, err := e.deps.Store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		log.Warn("failed to reload account after pass", zap.Error(err))
		return
	}
	if acct.State != models.StateAnalyzing {
		return
	}
	if err := e.deps.Store.UpdateAccountState(ctx, tenantID, accountID, models.StateConnected); err != nil {
		log.Warn("failed to restore connected state", zap.Error(err))
	}
}

// dropAlerted removes verdicts whose click already has an alert.
func (e *Engine) dropAlerted(ctx context.Context, tenantID, accountID string, verdicts []models.FraudVerdict) ([]models.FraudVerdict, error) {
	if len(verdicts) == 0 {
		return nil, nil
	}
	ids := make([]string, len(verdicts))
	for i, v := range verdicts {
		ids[i] = v.ClickID
	}
	existing, err := e.deps.Store.ExistingClickIDs(ctx, tenantID, accountID, ids)
	if err != nil {
		return nil, stageErr(KindDataStore, StageDedup, fmt.Errorf("check existing alerts: %w", err))
	}
	fresh := make([]models.FraudVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if !existing[v.ClickID] {
			fresh = append(fresh, v)
		}
	}
	return fresh, nil
}
