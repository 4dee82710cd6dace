package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"storefront/internal/models"
)

// ErrBasketChanged is returned when basket lines vanished between locking
// and deleting them.
var ErrBasketChanged = errors.New("basket items were consumed concurrently")

const checkoutColumns = `id, user_id, payment_method_id, delivery_method_id, status, total_amount,
	currency, delivery_price, payment_fee, items_snapshot, recipient_data, notes, idempotency_key,
	payment_key, payment_attempts, created_at, updated_at`

// CheckoutBuilder turns the locked basket lines into a checkout and its items.
// It runs inside the creating transaction and must not do I/O.
type CheckoutBuilder func(lines []models.BasketLine) (*models.Checkout, error)

// CreateCheckoutFromBasket locks the user's basket lines, builds the checkout
// from them, inserts it with its items and deletes the consumed lines, all in
// one transaction.
func (s *Store) CreateCheckoutFromBasket(ctx context.Context, userID int64, basketItemIDs []int64, build CheckoutBuilder) (*models.Checkout, error) {
	var created *models.Checkout

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		lines := []models.BasketLine{}
		err := tx.SelectContext(ctx, &lines, `
			SELECT b.id, b.user_id, b.product_id, p.name AS product_name, p.price AS product_price,
				b.count, b.price, b.currency, b.variant_key, b.variant_data, b.metadata,
				b.created_at, b.updated_at, p.sku AS product_sku, p.weight_grams
			FROM basket_items b JOIN products p ON p.id = b.product_id
			WHERE b.user_id = $1 AND b.id = ANY($2)
			ORDER BY b.id
			FOR UPDATE OF b`, userID, pq.Array(basketItemIDs))
		if err != nil {
			return fmt.Errorf("failed to lock basket items: %w", err)
		}

		checkout, err := build(lines)
		if err != nil {
			return err
		}
		checkout.ItemsSnapshot = models.JSONOr(checkout.ItemsSnapshot, `[]`)
		checkout.RecipientData = models.JSONOr(checkout.RecipientData, `{}`)

		if err := namedGet(ctx, tx, checkout, `
			INSERT INTO checkouts (user_id, payment_method_id, delivery_method_id, status,
				total_amount, currency, delivery_price, payment_fee, items_snapshot,
				recipient_data, notes, idempotency_key, payment_key)
			VALUES (:user_id, :payment_method_id, :delivery_method_id, :status,
				:total_amount, :currency, :delivery_price, :payment_fee, :items_snapshot,
				:recipient_data, :notes, :idempotency_key, :payment_key)
			RETURNING `+checkoutColumns, checkout); err != nil {
			return err
		}

		for i := range checkout.Items {
			item := &checkout.Items[i]
			item.CheckoutID = checkout.ID
			item.Metadata = models.JSONOr(item.Metadata, `{}`)
			if err := namedGet(ctx, tx, &item.ID, `
				INSERT INTO checkout_items (checkout_id, product_id, name, sku, price, currency,
					quantity, metadata)
				VALUES (:checkout_id, :product_id, :name, :sku, :price, :currency,
					:quantity, :metadata)
				RETURNING id`, item); err != nil {
				return err
			}
		}

		ids := make([]int64, len(lines))
		for i, l := range lines {
			ids[i] = l.ID
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM basket_items WHERE user_id = $1 AND id = ANY($2)`, userID, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to consume basket items: %w", err)
		}
		deleted, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if deleted != int64(len(ids)) {
			return ErrBasketChanged
		}

		checkout.Transactions = []models.Transaction{}
		created = checkout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetCheckoutByIdempotencyKey finds the user's checkout created with key.
func (s *Store) GetCheckoutByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Checkout, error) {
	var c models.Checkout
	err := s.db.GetContext(ctx, &c,
		`SELECT `+checkoutColumns+` FROM checkouts WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.loadCheckoutRelations(ctx, []*models.Checkout{&c}); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCheckout(ctx context.Context, id int64) (*models.Checkout, error) {
	var c models.Checkout
	if err := s.db.GetContext(ctx, &c, `SELECT `+checkoutColumns+` FROM checkouts WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	if err := s.loadCheckoutRelations(ctx, []*models.Checkout{&c}); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCheckouts returns checkouts newest first, restricted to one user when
// userID is set.
func (s *Store) ListCheckouts(ctx context.Context, userID *int64) ([]*models.Checkout, error) {
	checkouts := []*models.Checkout{}
	err := s.db.SelectContext(ctx, &checkouts, `
		SELECT `+checkoutColumns+` FROM checkouts
		WHERE ($1::bigint IS NULL OR user_id = $1)
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkouts: %w", err)
	}
	if err := s.loadCheckoutRelations(ctx, checkouts); err != nil {
		return nil, err
	}
	return checkouts, nil
}

func (s *Store) loadCheckoutRelations(ctx context.Context, checkouts []*models.Checkout) error {
	if len(checkouts) == 0 {
		return nil
	}
	ids := make([]int64, len(checkouts))
	byID := make(map[int64]*models.Checkout, len(checkouts))
	for i, c := range checkouts {
		ids[i] = c.ID
		c.Items = []models.CheckoutItem{}
		c.Transactions = []models.Transaction{}
		byID[c.ID] = c
	}

	var items []models.CheckoutItem
	if err := s.db.SelectContext(ctx, &items, `
		SELECT id, checkout_id, product_id, name, sku, price, currency, quantity, metadata
		FROM checkout_items WHERE checkout_id = ANY($1) ORDER BY id`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load checkout items: %w", err)
	}
	for _, it := range items {
		c := byID[it.CheckoutID]
		c.Items = append(c.Items, it)
	}

	var txs []models.Transaction
	if err := s.db.SelectContext(ctx, &txs, `
		SELECT id, checkout_id, provider, external_id, status, payload, created_at
		FROM transactions WHERE checkout_id = ANY($1) ORDER BY created_at DESC, id DESC`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	for _, t := range txs {
		c := byID[t.CheckoutID]
		c.Transactions = append(c.Transactions, t)
	}
	return nil
}

// RecordPaymentAttempt bumps the gateway attempt counter of a draft checkout
// and returns the new count.
func (s *Store) RecordPaymentAttempt(ctx context.Context, checkoutID int64) (int, error) {
	var attempts int
	err := s.db.GetContext(ctx, &attempts, `
		UPDATE checkouts SET payment_attempts = payment_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING payment_attempts`, checkoutID)
	if err != nil {
		return 0, translate(err)
	}
	return attempts, nil
}

// AttachTransaction stores the gateway result for a draft checkout and moves
// it to status. It returns ErrNotFound when the checkout is no longer a draft.
func (s *Store) AttachTransaction(ctx context.Context, checkoutID int64, t *models.Transaction, status models.CheckoutStatus) error {
	t.CheckoutID = checkoutID
	t.Payload = models.JSONOr(t.Payload, `{}`)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE checkouts SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3`, checkoutID, status, models.CheckoutStatusDraft)
		if err != nil {
			return fmt.Errorf("failed to update checkout status: %w", err)
		}
		if err := requireAffected(res.RowsAffected()); err != nil {
			return err
		}

		return namedGet(ctx, tx, t, `
			INSERT INTO transactions (checkout_id, provider, external_id, status, payload)
			VALUES (:checkout_id, :provider, :external_id, :status, :payload)
			RETURNING id, checkout_id, provider, external_id, status, payload, created_at`, t)
	})
}

// TransitionCheckout moves a checkout to next if its current status is one of
// from. ErrNotFound means no row matched.
func (s *Store) TransitionCheckout(ctx context.Context, id int64, from []models.CheckoutStatus, next models.CheckoutStatus) error {
	return requireAffected(execAffected(ctx, s, `
		UPDATE checkouts SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)`, id, next, pq.Array(statusStrings(from))))
}

func statusStrings(statuses []models.CheckoutStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

// PaymentUpdate is a gateway status change to apply exactly once.
type PaymentUpdate struct {
	EventID           string
	EventType         string
	TransactionID     int64
	TransactionStatus string
	Payload           datatypes.JSON
	CheckoutID        int64
	CheckoutStatus    models.CheckoutStatus
}

// ApplyPaymentUpdate records the event as processed, updates the transaction
// and moves a non-terminal checkout to the new status. It reports false when
// the event had already been processed.
func (s *Store) ApplyPaymentUpdate(ctx context.Context, u PaymentUpdate) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO processed_events (event_id, event_type, processed_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (event_id) DO NOTHING`, u.EventID, u.EventType)
		if err != nil {
			return fmt.Errorf("failed to mark event processed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions SET status = $2, payload = $3 WHERE id = $1`,
			u.TransactionID, u.TransactionStatus, models.JSONOr(u.Payload, `{}`)); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE checkouts SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status IN ('draft', 'pending') AND status <> $2`,
			u.CheckoutID, u.CheckoutStatus); err != nil {
			return fmt.Errorf("failed to update checkout status: %w", err)
		}

		applied = true
		return nil
	})
	return applied, err
}

// ListStaleDrafts returns draft checkouts created before cutoff that have no
// transaction yet, oldest first.
func (s *Store) ListStaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]*models.Checkout, error) {
	checkouts := []*models.Checkout{}
	err := s.db.SelectContext(ctx, &checkouts, `
		SELECT `+checkoutColumns+` FROM checkouts c
		WHERE c.status = 'draft' AND c.created_at < $1
			AND NOT EXISTS (SELECT 1 FROM transactions t WHERE t.checkout_id = c.id)
		ORDER BY c.created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale drafts: %w", err)
	}
	return checkouts, nil
}

// ListPendingTransactions returns the initiated, non-mock transactions of
// pending checkouts, oldest first.
func (s *Store) ListPendingTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txs, `
		SELECT t.id, t.checkout_id, t.provider, t.external_id, t.status, t.payload, t.created_at
		FROM transactions t JOIN checkouts c ON c.id = t.checkout_id
		WHERE c.status = 'pending' AND t.status = 'initiated' AND t.external_id NOT LIKE 'mock-%'
		ORDER BY t.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

const transactionColumns = `id, checkout_id, provider, external_id, status, payload, created_at`

var transactionList = listQuery{
	searchCols:   []string{"external_id", "provider", "status"},
	orderCols:    map[string]string{"created_at": "created_at", "status": "status"},
	defaultOrder: "created_at DESC",
}

func (s *Store) ListTransactions(ctx context.Context, opts ListOptions) ([]models.Transaction, error) {
	query, args := transactionList.apply(`SELECT `+transactionColumns+` FROM transactions WHERE TRUE`, nil, opts)
	txs := []models.Transaction{}
	if err := s.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var t models.Transaction
	if err := s.db.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) GetTransactionByExternalID(ctx context.Context, externalID string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE external_id = $1`, externalID)
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}
