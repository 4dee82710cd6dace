package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storefront/internal/service"
	"storefront/internal/util"
)

const reconcileLockKey = "payments:reconcile"

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) (service.ReconcileStats, error)
}

// Locker guards a pass so only one replica runs it at a time. The token
// returned by AcquireLock must be passed back to ReleaseLock.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// ReconcileWorker periodically retries draft payments and syncs pending
// ones with the gateway.
type ReconcileWorker struct {
	reconciler Reconciler
	locker     Locker
	interval   time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewReconcileWorker creates a worker ticking every interval. A nil locker
// runs every pass unguarded.
func NewReconcileWorker(reconciler Reconciler, locker Locker, interval time.Duration) *ReconcileWorker {
	lockTTL := interval
	if lockTTL < 30*time.Second {
		lockTTL = 30 * time.Second
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		locker:     locker,
		interval:   interval,
		lockTTL:    lockTTL,
		now:        time.Now,
		logger:     util.GetLogger(),
	}
}

// Start runs passes until ctx is cancelled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reconcile worker")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single pass if the lock is free. It reports whether the
// pass ran.
func (w *ReconcileWorker) RunOnce(ctx context.Context) bool {
	if w.locker != nil {
		token, acquired, err := w.locker.AcquireLock(ctx, reconcileLockKey, w.lockTTL)
		if err != nil {
			w.logger.Error("Failed to acquire reconcile lock", zap.Error(err))
			return false
		}
		if !acquired {
			w.logger.Debug("Reconcile pass skipped, lock held elsewhere")
			return false
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.Background(), reconcileLockKey, token); err != nil {
				w.logger.Warn("Failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	if _, err := w.reconciler.Reconcile(ctx, w.now()); err != nil {
		w.logger.Error("Reconcile pass failed", zap.Error(err))
	}
	return true
}
