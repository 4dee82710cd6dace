package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentMethod struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Code        string         `db:"code" json:"code"`
	Description string         `db:"description" json:"description"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	Provider    string         `db:"provider" json:"provider"`
	Logo        string         `db:"logo" json:"logo"`
	FeePercent  Money          `db:"fee_percent" json:"fee_percent"`
	Metadata    datatypes.JSON `db:"metadata" json:"metadata"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

type DeliveryMethod struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Code        string         `db:"code" json:"code"`
	Description string         `db:"description" json:"description"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	MinDays     int            `db:"min_days" json:"min_days"`
	MaxDays     int            `db:"max_days" json:"max_days"`
	BasePrice   Money          `db:"base_price" json:"base_price"`
	PricePerKg  Money          `db:"price_per_kg" json:"price_per_kg"`
	Logo        string         `db:"logo" json:"logo"`
	Metadata    datatypes.JSON `db:"metadata" json:"metadata"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// BasketItem is a mutable cart line. Price and currency are copied from the
// product when the line is added.
type BasketItem struct {
	ID           int64          `db:"id" json:"id"`
	UserID       int64          `db:"user_id" json:"-"`
	ProductID    int64          `db:"product_id" json:"product"`
	ProductName  string         `db:"product_name" json:"product_name"`
	ProductPrice Money          `db:"product_price" json:"product_price"`
	Count        int            `db:"count" json:"count"`
	Price        Money          `db:"price" json:"price"`
	Currency     string         `db:"currency" json:"currency"`
	VariantKey   string         `db:"variant_key" json:"variant_key"`
	VariantData  datatypes.JSON `db:"variant_data" json:"variant_data"`
	Metadata     datatypes.JSON `db:"metadata" json:"metadata"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// BasketLine is a basket item joined with the product fields a checkout
// snapshots.
type BasketLine struct {
	BasketItem
	ProductSKU  string `db:"product_sku"`
	WeightGrams int    `db:"weight_grams"`
}

type CheckoutStatus string

const (
	CheckoutStatusDraft     CheckoutStatus = "draft"
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusPaid      CheckoutStatus = "paid"
	CheckoutStatusFailed    CheckoutStatus = "failed"
	CheckoutStatusCancelled CheckoutStatus = "cancelled"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusDraft:   {CheckoutStatusPending, CheckoutStatusPaid, CheckoutStatusFailed, CheckoutStatusCancelled},
	CheckoutStatusPending: {CheckoutStatusPaid, CheckoutStatusFailed, CheckoutStatusCancelled},
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusPaid || s == CheckoutStatusFailed || s == CheckoutStatusCancelled
}

// CanTransitionTo reports whether a checkout in status s may move to next.
func (s CheckoutStatus) CanTransitionTo(next CheckoutStatus) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Checkout is the frozen record of an order at payment initiation. Amounts
// and the snapshot are written once; only status and transactions change.
type Checkout struct {
	ID               int64          `db:"id" json:"id"`
	UserID           int64          `db:"user_id" json:"user_id"`
	PaymentMethodID  int64          `db:"payment_method_id" json:"payment_method"`
	DeliveryMethodID int64          `db:"delivery_method_id" json:"delivery_method"`
	Status           CheckoutStatus `db:"status" json:"status"`
	TotalAmount      Money          `db:"total_amount" json:"total_amount"`
	Currency         string         `db:"currency" json:"currency"`
	DeliveryPrice    Money          `db:"delivery_price" json:"delivery_price"`
	PaymentFee       Money          `db:"payment_fee" json:"payment_fee"`
	ItemsSnapshot    datatypes.JSON `db:"items_snapshot" json:"items_snapshot"`
	RecipientData    datatypes.JSON `db:"recipient_data" json:"recipient_data"`
	Notes            string         `db:"notes" json:"notes"`
	IdempotencyKey   *string        `db:"idempotency_key" json:"-"`
	PaymentKey       string         `db:"payment_key" json:"-"`
	PaymentAttempts  int            `db:"payment_attempts" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`

	Items               []CheckoutItem       `db:"-" json:"items"`
	Transactions        []Transaction        `db:"-" json:"transactions"`
	PaymentConfirmation *PaymentConfirmation `db:"-" json:"payment_confirmation"`
}

// SnapshotItem is one entry of Checkout.ItemsSnapshot.
type SnapshotItem struct {
	ProductID int64          `json:"product_id"`
	Name      string         `json:"name"`
	SKU       string         `json:"sku"`
	Count     int            `json:"count"`
	UnitPrice string         `json:"unit_price"`
	Variant   datatypes.JSON `json:"variant"`
}

type CheckoutItem struct {
	ID         int64          `db:"id" json:"id"`
	CheckoutID int64          `db:"checkout_id" json:"-"`
	ProductID  int64          `db:"product_id" json:"product"`
	Name       string         `db:"name" json:"name"`
	SKU        string         `db:"sku" json:"sku"`
	Price      Money          `db:"price" json:"price"`
	Currency   string         `db:"currency" json:"currency"`
	Quantity   int            `db:"quantity" json:"quantity"`
	Metadata   datatypes.JSON `db:"metadata" json:"metadata"`
}

// Transaction statuses
const (
	TransactionInitiated = "initiated"
	TransactionSucceeded = "succeeded"
	TransactionFailed    = "failed"
)

// Transaction is one payment-gateway attempt for a checkout.
type Transaction struct {
	ID         int64          `db:"id" json:"id"`
	CheckoutID int64          `db:"checkout_id" json:"checkout,omitempty"`
	Provider   string         `db:"provider" json:"provider"`
	ExternalID string         `db:"external_id" json:"external_id"`
	Status     string         `db:"status" json:"status"`
	Payload    datatypes.JSON `db:"payload" json:"payload"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

type PaymentConfirmation struct {
	ConfirmationURL string `json:"confirmation_url"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
