package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"
)

// CheckoutStore is the persistence the checkout flow needs.
type CheckoutStore interface {
	GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error)
	GetDeliveryMethod(ctx context.Context, id int64) (*models.DeliveryMethod, error)
	GetCheckoutByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Checkout, error)
	CreateCheckoutFromBasket(ctx context.Context, userID int64, basketItemIDs []int64, build store.CheckoutBuilder) (*models.Checkout, error)
	RecordPaymentAttempt(ctx context.Context, checkoutID int64) (int, error)
	AttachTransaction(ctx context.Context, checkoutID int64, t *models.Transaction, status models.CheckoutStatus) error
	TransitionCheckout(ctx context.Context, id int64, from []models.CheckoutStatus, next models.CheckoutStatus) error
	GetCheckout(ctx context.Context, id int64) (*models.Checkout, error)
	ListCheckouts(ctx context.Context, userID *int64) ([]*models.Checkout, error)
	ApplyPaymentUpdate(ctx context.Context, u store.PaymentUpdate) (bool, error)
	GetTransactionByExternalID(ctx context.Context, externalID string) (*models.Transaction, error)
	ListStaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]*models.Checkout, error)
	ListPendingTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
}

// PaymentGateway creates and inspects payments at the provider.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req payment.PaymentRequest) (*payment.Payment, error)
	GetPayment(ctx context.Context, id string) (*payment.Payment, error)
	Mock() bool
}

// Publisher pushes event records to the stream for a kind and returns the
// stream id, models.StreamOffline, or "" when publishing is off.
type Publisher interface {
	Publish(ctx context.Context, kind string, record models.EventRecord) string
}

// CheckoutService turns basket lines into checkouts and drives their payment.
type CheckoutService struct {
	store            CheckoutStore
	gateway          PaymentGateway
	publisher        Publisher
	defaultReturnURL string
	maxAttempts      int
	logger           *zap.Logger
}

func NewCheckoutService(store CheckoutStore, gateway PaymentGateway, publisher Publisher, defaultReturnURL string, maxAttempts int) *CheckoutService {
	return &CheckoutService{
		store:            store,
		gateway:          gateway,
		publisher:        publisher,
		defaultReturnURL: defaultReturnURL,
		maxAttempts:      maxAttempts,
		logger:           util.GetLogger(),
	}
}

// CreateCheckoutRequest is the body of POST /checkouts.
type CreateCheckoutRequest struct {
	BasketItemIDs    []int64        `json:"basket_item_ids" binding:"required,min=1"`
	PaymentMethodID  int64          `json:"payment_method" binding:"required"`
	DeliveryMethodID int64          `json:"delivery_method" binding:"required"`
	RecipientData    datatypes.JSON `json:"recipient_data"`
	Notes            string         `json:"notes"`
	ReturnURL        string         `json:"return_url"`
}

// GatewayError reports a checkout that was stored but whose payment could
// not be created yet. The reconciler retries it.
type GatewayError struct {
	CheckoutID int64
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("checkout %d: %v", e.CheckoutID, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return ErrGatewayUnavailable
}

// CreateCheckout consumes the selected basket lines into a draft checkout,
// then creates the payment outside the database transaction. A repeated
// idempotency key returns the existing checkout with created = false.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID int64, req *CreateCheckoutRequest, idempotencyKey string) (*models.Checkout, bool, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	if idempotencyKey != "" {
		existing, err := s.store.GetCheckoutByIdempotencyKey(ctx, userID, idempotencyKey)
		if err == nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("checkout_id", existing.ID))
			withConfirmation(existing)
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, util.SpanError(span, fmt.Errorf("failed to check idempotency: %w", err))
		}
	}

	payMethod, delivery, err := s.loadMethods(ctx, req)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_method").Inc()
		return nil, false, err
	}

	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	checkout, err := s.store.CreateCheckoutFromBasket(ctx, userID, req.BasketItemIDs, func(lines []models.BasketLine) (*models.Checkout, error) {
		if len(lines) == 0 {
			return nil, NewValidationError("basket_item_ids", "Basket is empty or the selected items were not found.")
		}
		return buildCheckout(userID, lines, payMethod, delivery, req, key)
	})
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			util.CheckoutsFailedTotal.WithLabelValues("empty_basket").Inc()
			return nil, false, err
		case errors.Is(err, store.ErrBasketChanged):
			util.CheckoutsFailedTotal.WithLabelValues("basket_conflict").Inc()
			return nil, false, fmt.Errorf("%w: basket items were already checked out", ErrConflict)
		case key != nil && errors.Is(err, store.ErrDuplicate):
			existing, getErr := s.store.GetCheckoutByIdempotencyKey(ctx, userID, *key)
			if errors.Is(getErr, store.ErrNotFound) {
				return nil, false, fmt.Errorf("%w: idempotency key %q is in use", ErrConflict, *key)
			}
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load concurrent checkout: %w", getErr)
			}
			withConfirmation(existing)
			return existing, false, nil
		}
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, false, util.SpanError(span, fmt.Errorf("failed to create checkout: %w", err))
	}

	util.CheckoutsCreatedTotal.Inc()
	s.logger.Info("Checkout created",
		zap.Int64("checkout_id", checkout.ID),
		zap.Int64("user_id", userID),
		zap.String("total", checkout.TotalAmount.String()))

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.defaultReturnURL
	}
	if err := s.initiatePayment(ctx, checkout, returnURL); err != nil {
		withConfirmation(checkout)
		return checkout, true, util.SpanError(span, err)
	}

	s.publish(ctx, checkout)
	withConfirmation(checkout)
	return checkout, true, nil
}

func (s *CheckoutService) loadMethods(ctx context.Context, req *CreateCheckoutRequest) (*models.PaymentMethod, *models.DeliveryMethod, error) {
	verr := &ValidationError{}

	payMethod, err := s.store.GetPaymentMethod(ctx, req.PaymentMethodID)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && !payMethod.IsActive):
		verr.Add("payment_method", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.PaymentMethodID))
	case err != nil:
		return nil, nil, fmt.Errorf("failed to load payment method: %w", err)
	}

	delivery, err := s.store.GetDeliveryMethod(ctx, req.DeliveryMethodID)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && !delivery.IsActive):
		verr.Add("delivery_method", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.DeliveryMethodID))
	case err != nil:
		return nil, nil, fmt.Errorf("failed to load delivery method: %w", err)
	}

	if err := verr.OrNil(); err != nil {
		return nil, nil, err
	}
	return payMethod, delivery, nil
}

func buildCheckout(userID int64, lines []models.BasketLine, payMethod *models.PaymentMethod, delivery *models.DeliveryMethod, req *CreateCheckoutRequest, key *string) (*models.Checkout, error) {
	quote := PriceLines(lines, delivery, payMethod)
	snapshot, items, err := snapshotLines(lines)
	if err != nil {
		return nil, err
	}

	return &models.Checkout{
		UserID:           userID,
		PaymentMethodID:  payMethod.ID,
		DeliveryMethodID: delivery.ID,
		Status:           models.CheckoutStatusDraft,
		TotalAmount:      quote.Total,
		Currency:         quote.Currency,
		DeliveryPrice:    quote.DeliveryPrice,
		PaymentFee:       quote.PaymentFee,
		ItemsSnapshot:    snapshot,
		RecipientData:    models.JSONOr(req.RecipientData, `{}`),
		Notes:            req.Notes,
		IdempotencyKey:   key,
		PaymentKey:       uuid.New().String(),
		Items:            items,
	}, nil
}

// initiatePayment asks the gateway for a payment using the checkout's
// payment key, then records the transaction and moves the draft on. On
// gateway failure the draft is kept and its attempt counter bumped.
func (s *CheckoutService) initiatePayment(ctx context.Context, c *models.Checkout, returnURL string) error {
	p, err := s.gateway.CreatePayment(ctx, payment.PaymentRequest{
		CheckoutID:     c.ID,
		Amount:         c.TotalAmount,
		Currency:       c.Currency,
		ReturnURL:      returnURL,
		IdempotenceKey: c.PaymentKey,
	})
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("gateway").Inc()
		attempts, recErr := s.store.RecordPaymentAttempt(ctx, c.ID)
		if recErr != nil {
			s.logger.Error("Failed to record payment attempt",
				zap.Int64("checkout_id", c.ID),
				zap.Error(recErr))
		} else {
			c.PaymentAttempts = attempts
		}
		s.logger.Warn("Payment creation failed, checkout left in draft",
			zap.Int64("checkout_id", c.ID),
			zap.Int("attempts", c.PaymentAttempts),
			zap.Error(err))
		return &GatewayError{CheckoutID: c.ID, Err: err}
	}

	tx := &models.Transaction{
		Provider:   payment.Provider,
		ExternalID: p.ID,
		Status:     p.TransactionStatus(),
		Payload:    datatypes.JSON(p.Payload()),
	}
	status := checkoutStatusFor(tx.Status)

	if err := s.store.AttachTransaction(ctx, c.ID, tx, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: checkout %d is no longer a draft", ErrConflict, c.ID)
		}
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	c.Status = status
	c.Transactions = append([]models.Transaction{*tx}, c.Transactions...)
	util.CheckoutStatusTransitions.WithLabelValues(string(status)).Inc()
	s.logger.Info("Payment initiated",
		zap.Int64("checkout_id", c.ID),
		zap.String("external_id", tx.ExternalID),
		zap.String("status", string(status)))
	return nil
}

// checkoutStatusFor maps a transaction status to the checkout status it
// implies.
func checkoutStatusFor(txStatus string) models.CheckoutStatus {
	switch txStatus {
	case models.TransactionSucceeded:
		return models.CheckoutStatusPaid
	case models.TransactionFailed:
		return models.CheckoutStatusFailed
	default:
		return models.CheckoutStatusPending
	}
}

func (s *CheckoutService) publish(ctx context.Context, c *models.Checkout) {
	if s.publisher == nil {
		return
	}
	if id := s.publisher.Publish(ctx, models.EventKindCheckout, models.CheckoutRecord(c)); id == models.StreamOffline {
		s.logger.Warn("Checkout event not published", zap.Int64("checkout_id", c.ID))
	}
}

// withConfirmation fills PaymentConfirmation from the latest transaction.
func withConfirmation(c *models.Checkout) {
	c.PaymentConfirmation = nil
	if len(c.Transactions) == 0 {
		return
	}
	latest := c.Transactions[0]
	var payload struct {
		ConfirmationURL *string `json:"confirmation_url"`
	}
	if err := json.Unmarshal(latest.Payload, &payload); err != nil || payload.ConfirmationURL == nil {
		return
	}
	c.PaymentConfirmation = &models.PaymentConfirmation{
		ConfirmationURL: *payload.ConfirmationURL,
		Provider:        latest.Provider,
		Status:          latest.Status,
	}
}

// ListCheckouts returns the caller's checkouts; staff may ask for all.
func (s *CheckoutService) ListCheckouts(ctx context.Context, p Principal, all bool) ([]*models.Checkout, error) {
	var owner *int64
	if !(all && p.IsStaff) {
		owner = &p.UserID
	}
	checkouts, err := s.store.ListCheckouts(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, c := range checkouts {
		withConfirmation(c)
	}
	return checkouts, nil
}

// GetCheckout returns a checkout visible to p.
func (s *CheckoutService) GetCheckout(ctx context.Context, p Principal, id int64) (*models.Checkout, error) {
	c, err := s.store.GetCheckout(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if c.UserID != p.UserID && !p.IsStaff {
		return nil, ErrNotFound
	}
	withConfirmation(c)
	return c, nil
}

// CancelCheckout lets the owner abandon a draft or pending checkout.
func (s *CheckoutService) CancelCheckout(ctx context.Context, p Principal, id int64) (*models.Checkout, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CancelCheckout")
	defer span.End()

	c, err := s.GetCheckout(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != p.UserID {
		return nil, ErrForbidden
	}
	if !c.Status.CanTransitionTo(models.CheckoutStatusCancelled) {
		return nil, NewValidationError("status", fmt.Sprintf("Checkout in status %q cannot be cancelled.", c.Status))
	}

	err = s.store.TransitionCheckout(ctx, id,
		[]models.CheckoutStatus{models.CheckoutStatusDraft, models.CheckoutStatusPending},
		models.CheckoutStatusCancelled)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: checkout %d changed status concurrently", ErrConflict, id)
	}
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	c.Status = models.CheckoutStatusCancelled
	util.CheckoutStatusTransitions.WithLabelValues(string(c.Status)).Inc()
	s.logger.Info("Checkout cancelled", zap.Int64("checkout_id", id))
	s.publish(ctx, c)
	return c, nil
}
