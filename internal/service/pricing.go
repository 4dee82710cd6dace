package service

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"storefront/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	grams   = decimal.NewFromInt(1000)
)

// Quote is the priced result of a set of basket lines.
type Quote struct {
	Subtotal      models.Money
	WeightKg      decimal.Decimal
	DeliveryPrice models.Money
	PaymentFee    models.Money
	Total         models.Money
	Currency      string
}

// PriceLines computes the checkout amounts for lines. Delivery and fee are
// rounded half-up to two places before summing, so Total is exactly
// Subtotal + DeliveryPrice + PaymentFee.
func PriceLines(lines []models.BasketLine, delivery *models.DeliveryMethod, pay *models.PaymentMethod) Quote {
	subtotal := decimal.Zero
	weight := decimal.Zero
	for _, l := range lines {
		count := decimal.NewFromInt(int64(l.Count))
		subtotal = subtotal.Add(l.Price.Decimal.Mul(count))
		weight = weight.Add(decimal.NewFromInt(int64(l.WeightGrams)).Mul(count))
	}
	weightKg := weight.Div(grams)

	deliveryPrice := models.NewMoney(delivery.BasePrice.Decimal.Add(delivery.PricePerKg.Decimal.Mul(weightKg)))
	fee := models.NewMoney(subtotal.Mul(pay.FeePercent.Decimal).Div(hundred))
	sub := models.NewMoney(subtotal)

	q := Quote{
		Subtotal:      sub,
		WeightKg:      weightKg,
		DeliveryPrice: deliveryPrice,
		PaymentFee:    fee,
		Total:         models.NewMoney(sub.Decimal.Add(deliveryPrice.Decimal).Add(fee.Decimal)),
	}
	if len(lines) > 0 {
		q.Currency = lines[0].Currency
	}
	return q
}

// snapshotLines freezes the basket lines into the checkout snapshot and items.
func snapshotLines(lines []models.BasketLine) (datatypes.JSON, []models.CheckoutItem, error) {
	snapshot := make([]models.SnapshotItem, 0, len(lines))
	items := make([]models.CheckoutItem, 0, len(lines))
	for _, l := range lines {
		variant := models.JSONOr(l.VariantData, `{}`)
		snapshot = append(snapshot, models.SnapshotItem{
			ProductID: l.ProductID,
			Name:      l.ProductName,
			SKU:       l.ProductSKU,
			Count:     l.Count,
			UnitPrice: l.Price.String(),
			Variant:   variant,
		})
		items = append(items, models.CheckoutItem{
			ProductID: l.ProductID,
			Name:      l.ProductName,
			SKU:       l.ProductSKU,
			Price:     l.Price,
			Currency:  l.Currency,
			Quantity:  l.Count,
			Metadata:  variant,
		})
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return datatypes.JSON(raw), items, nil
}
