package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"
)

// PaymentReconciler brings checkouts in line with the gateway: it applies
// webhook notifications and periodically retries or re-syncs payments.
type PaymentReconciler struct {
	checkouts *CheckoutService
	grace     time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewPaymentReconciler(checkouts *CheckoutService, grace time.Duration) *PaymentReconciler {
	return &PaymentReconciler{
		checkouts: checkouts,
		grace:     grace,
		batchSize: 100,
		logger:    util.GetLogger(),
	}
}

// Notification is the webhook body YooKassa posts.
type Notification struct {
	Type   string `json:"type"`
	Event  string `json:"event" binding:"required"`
	Object struct {
		ID     string `json:"id" binding:"required"`
		Status string `json:"status"`
	} `json:"object"`
}

// HandleNotification applies a webhook notification once. Unknown payments
// and repeated events are acknowledged without effect.
func (r *PaymentReconciler) HandleNotification(ctx context.Context, n *Notification) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleNotification")
	defer span.End()

	cs := r.checkouts
	tx, err := cs.store.GetTransactionByExternalID(ctx, n.Object.ID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("Notification for unknown payment ignored",
			zap.String("event", n.Event),
			zap.String("payment_id", n.Object.ID))
		return nil
	}
	if err != nil {
		return util.SpanError(span, fmt.Errorf("failed to load transaction: %w", err))
	}

	// Re-read the payment from the gateway unless it only exists in mock mode.
	p := &payment.Payment{ID: n.Object.ID, Status: n.Object.Status}
	if !cs.gateway.Mock() && !payment.IsMockID(n.Object.ID) {
		p, err = cs.gateway.GetPayment(ctx, n.Object.ID)
		if err != nil {
			return util.SpanError(span, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
		}
	} else {
		p.Raw = []byte(tx.Payload)
	}

	eventID := fmt.Sprintf("%s:%s", n.Event, n.Object.ID)
	_, err = r.apply(ctx, tx, p, eventID, n.Event)
	return util.SpanError(span, err)
}

// apply records the payment state on the transaction and checkout, at most
// once per eventID.
func (r *PaymentReconciler) apply(ctx context.Context, tx *models.Transaction, p *payment.Payment, eventID, eventType string) (bool, error) {
	cs := r.checkouts
	txStatus := p.TransactionStatus()
	checkoutStatus := checkoutStatusFor(txStatus)

	applied, err := cs.store.ApplyPaymentUpdate(ctx, store.PaymentUpdate{
		EventID:           eventID,
		EventType:         eventType,
		TransactionID:     tx.ID,
		TransactionStatus: txStatus,
		Payload:           datatypes.JSON(p.Payload()),
		CheckoutID:        tx.CheckoutID,
		CheckoutStatus:    checkoutStatus,
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply payment update: %w", err)
	}
	if !applied {
		r.logger.Info("Event already processed", zap.String("event_id", eventID))
		return false, nil
	}

	r.logger.Info("Payment status applied",
		zap.Int64("checkout_id", tx.CheckoutID),
		zap.String("payment_id", p.ID),
		zap.String("transaction_status", txStatus))

	c, err := cs.store.GetCheckout(ctx, tx.CheckoutID)
	if err != nil {
		r.logger.Error("Failed to reload checkout after payment update",
			zap.Int64("checkout_id", tx.CheckoutID),
			zap.Error(err))
		return true, nil
	}
	util.CheckoutStatusTransitions.WithLabelValues(string(c.Status)).Inc()
	cs.publish(ctx, c)
	return true, nil
}

// ReconcileStats summarises one reconciliation pass.
type ReconcileStats struct {
	Retried   int
	Failed    int
	Synced    int
	Errors    int
	Inspected int
}

// Reconcile retries payment creation for stale drafts and syncs pending
// checkouts with the gateway.
func (r *PaymentReconciler) Reconcile(ctx context.Context, now time.Time) (ReconcileStats, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.Reconcile")
	defer span.End()

	var stats ReconcileStats
	if err := r.retryDrafts(ctx, now, &stats); err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return stats, util.SpanError(span, err)
	}
	if err := r.syncPending(ctx, &stats); err != nil {
		util.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return stats, util.SpanError(span, err)
	}

	util.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	if stats.Inspected > 0 {
		r.logger.Info("Reconciliation pass finished",
			zap.Int("inspected", stats.Inspected),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed),
			zap.Int("synced", stats.Synced),
			zap.Int("errors", stats.Errors))
	}
	return stats, nil
}

func (r *PaymentReconciler) retryDrafts(ctx context.Context, now time.Time, stats *ReconcileStats) error {
	cs := r.checkouts
	drafts, err := cs.store.ListStaleDrafts(ctx, now.Add(-r.grace), r.batchSize)
	if err != nil {
		return err
	}

	for _, c := range drafts {
		stats.Inspected++
		if c.PaymentAttempts >= cs.maxAttempts {
			err := cs.store.TransitionCheckout(ctx, c.ID,
				[]models.CheckoutStatus{models.CheckoutStatusDraft}, models.CheckoutStatusFailed)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				stats.Errors++
				r.logger.Error("Failed to fail exhausted checkout", zap.Int64("checkout_id", c.ID), zap.Error(err))
				continue
			}
			if err == nil {
				stats.Failed++
				c.Status = models.CheckoutStatusFailed
				util.CheckoutStatusTransitions.WithLabelValues(string(c.Status)).Inc()
				r.logger.Warn("Checkout failed after exhausting payment attempts",
					zap.Int64("checkout_id", c.ID),
					zap.Int("attempts", c.PaymentAttempts))
				cs.publish(ctx, c)
			}
			continue
		}

		if err := cs.initiatePayment(ctx, c, cs.defaultReturnURL); err != nil {
			stats.Errors++
			continue
		}
		stats.Retried++
		cs.publish(ctx, c)
	}
	return nil
}

func (r *PaymentReconciler) syncPending(ctx context.Context, stats *ReconcileStats) error {
	cs := r.checkouts
	if cs.gateway.Mock() {
		return nil
	}
	txs, err := cs.store.ListPendingTransactions(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for i := range txs {
		tx := &txs[i]
		stats.Inspected++
		p, err := cs.gateway.GetPayment(ctx, tx.ExternalID)
		if err != nil {
			stats.Errors++
			continue
		}
		if p.TransactionStatus() == tx.Status {
			continue
		}
		applied, err := r.apply(ctx, tx, p, fmt.Sprintf("reconcile:%s:%s", p.ID, p.Status), "reconcile")
		if err != nil {
			stats.Errors++
			r.logger.Error("Failed to sync payment", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		if applied {
			stats.Synced++
		}
	}
	return nil
}
