package fraud

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/models"
)

// StatusStore keeps the latest run status per ads account.
type StatusStore interface {
	SaveRunStatus(ctx context.Context, status models.RunStatus) error
	RunStatus(ctx context.Context, tenantID, accountID string) (*models.RunStatus, error)
}

// ErrRunInProgress is returned by StartPass when the account's last run is
// still marked running.
var ErrRunInProgress = errors.New("a fraud pass is already running for this account")

// Runner runs fraud passes in the background, either on request or on a
// schedule for every connected account.
type Runner struct {
	engine      *Engine
	accounts    db.AccountStore
	status      StatusStore
	concurrency int
	staleAfter  time.Duration
	logger      *zap.Logger

	wg sync.WaitGroup
}

// NewRunner creates a Runner. status may be nil, in which case run status
// is not recorded.
func NewRunner(engine *Engine, accounts db.AccountStore, status StatusStore, concurrency int, logger *zap.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		engine:      engine,
		accounts:    accounts,
		status:      status,
		concurrency: concurrency,
		staleAfter:  engine.cfg.PassLockTTL,
		logger:      logger,
	}
}

// StartPass starts a fraud pass in the background and returns its run id.
// The pass is detached from ctx cancellation. Its status is recorded once it
// holds the account lock; a pass that loses the lock records nothing.
func (r *Runner) StartPass(ctx context.Context, tenantID, accountID string, opts PassOptions) (string, error) {
	if r.status != nil {
		last, err := r.status.RunStatus(ctx, tenantID, accountID)
		switch {
		case err == nil && last.State == models.RunRunning && time.Since(last.StartedAt) < r.staleAfter:
			return "", stageErr(KindConflict, StageLock, ErrRunInProgress)
		case err != nil && !errors.Is(err, db.ErrNotFound):
			r.logger.Warn("failed to read run status", zap.Error(err))
		}
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	status := models.RunStatus{
		RunID:        opts.RunID,
		TenantID:     tenantID,
		AdsAccountID: accountID,
		State:        models.RunRunning,
		StartedAt:    time.Now().UTC(),
	}

	// The status is written only once the pass holds the account lock, so a
	// pass that loses the lock never replaces the holder's status.
	bg := context.WithoutCancel(ctx)
	opts.Started = func() { r.saveStatus(bg, status) }
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.engine.RunFraudPass(bg, tenantID, accountID, opts)
		r.finish(bg, status, res, err)
	}()
	return opts.RunID, nil
}

// Status returns the latest run status for the account.
func (r *Runner) Status(ctx context.Context, tenantID, accountID string) (*models.RunStatus, error) {
	if r.status == nil {
		return nil, db.ErrUnavailable
	}
	return r.status.RunStatus(ctx, tenantID, accountID)
}

func (r *Runner) finish(ctx context.Context, status models.RunStatus, res *FraudPassResult, err error) {
	finished := time.Now().UTC()
	status.FinishedAt = &finished
	if KindOf(err) == KindConflict {
		r.logger.Info("fraud pass skipped, another pass holds the lock",
			zap.String("run_id", status.RunID),
			zap.String("ads_account_id", status.AdsAccountID))
		return
	}
	if err != nil {
		status.State = models.RunFailed
		status.Error = err.Error()
	} else {
		status.State = models.RunSucceeded
		status.AlertCount = len(res.Alerts)
		status.TotalCost = res.TotalCost.StringFixed(2)
	}
	r.saveStatus(ctx, status)
}

func (r *Runner) saveStatus(ctx context.Context, status models.RunStatus) {
	if r.status == nil {
		return
	}
	if err := r.status.SaveRunStatus(ctx, status); err != nil {
		r.logger.Warn("failed to save run status",
			zap.String("run_id", status.RunID),
			zap.Error(err))
	}
}

// RunConnected runs a pass for every connected account, at most
// concurrency at a time, and waits for them. Individual pass failures are
// logged; only listing the accounts can fail the call.
func (r *Runner) RunConnected(ctx context.Context) error {
	accts, err := r.accounts.ListAccountsByState(ctx, models.StateConnected)
	if err != nil {
		return fmt.Errorf("list connected accounts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, acct := range accts {
		g.Go(func() error {
			res, err := r.engine.RunFraudPass(gctx, acct.TenantID, acct.ID, PassOptions{})
			if err != nil {
				if KindOf(err) != KindConflict {
					r.logger.Warn("scheduled fraud pass failed",
						zap.String("tenant_id", acct.TenantID),
						zap.String("ads_account_id", acct.ID),
						zap.Error(err))
				}
				return nil
			}
			if _, err := res.Dispatch.Wait(gctx); err != nil {
				r.logger.Debug("stopped waiting for suppression", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	r.logger.Info("scheduled fraud passes complete", zap.Int("accounts", len(accts)))
	return nil
}

// Start runs RunConnected every interval until ctx is done. A non-positive
// interval disables the schedule.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.logger.Info("fraud pass schedule disabled")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.RunConnected(ctx); err != nil {
					r.logger.Error("scheduled fraud passes failed", zap.Error(err))
				}
			}
		}
	}()
	r.logger.Info("fraud pass schedule started", zap.Duration("interval", interval))
}

// Wait blocks until background passes and the schedule have stopped.
func (r *Runner) Wait() {
	r.wg.Wait()
}
