package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"

	"storefront/internal/models"
	"storefront/internal/store"
)

// BasketStore is the persistence behind the caller's basket.
type BasketStore interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListBasketItems(ctx context.Context, userID int64) ([]models.BasketItem, error)
	GetBasketItem(ctx context.Context, id, userID int64) (*models.BasketItem, error)
	UpsertBasketItem(ctx context.Context, item *models.BasketItem) error
	UpdateBasketItem(ctx context.Context, item *models.BasketItem) error
	DeleteBasketItem(ctx context.Context, id, userID int64) error
}

type BasketService struct {
	store BasketStore
}

func NewBasketService(store BasketStore) *BasketService {
	return &BasketService{store: store}
}

type AddBasketItemRequest struct {
	ProductID   int64          `json:"product" binding:"required"`
	Count       int            `json:"count" binding:"required,min=1"`
	VariantKey  string         `json:"variant_key" binding:"max=255"`
	VariantData datatypes.JSON `json:"variant_data"`
	Metadata    datatypes.JSON `json:"metadata"`
}

// UpdateBasketItemRequest is a partial update; nil fields are kept.
type UpdateBasketItemRequest struct {
	Count       *int           `json:"count" binding:"omitempty,min=1"`
	VariantData datatypes.JSON `json:"variant_data"`
	Metadata    datatypes.JSON `json:"metadata"`
}

func (s *BasketService) List(ctx context.Context, userID int64) ([]models.BasketItem, error) {
	return s.store.ListBasketItems(ctx, userID)
}

func (s *BasketService) Get(ctx context.Context, userID, id int64) (*models.BasketItem, error) {
	item, err := s.store.GetBasketItem(ctx, id, userID)
	return item, storeErr(err)
}

// Add puts a product in the basket, copying its current price and currency.
// Adding the same product and variant again replaces the line.
func (s *BasketService) Add(ctx context.Context, userID int64, req *AddBasketItemRequest) (*models.BasketItem, error) {
	product, err := s.store.GetProduct(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewValidationError("product", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", req.ProductID))
	}
	if err != nil {
		return nil, err
	}

	item := &models.BasketItem{
		UserID:      userID,
		ProductID:   product.ID,
		Count:       req.Count,
		Price:       product.Price,
		Currency:    product.Currency,
		VariantKey:  req.VariantKey,
		VariantData: req.VariantData,
		Metadata:    req.Metadata,
	}
	if err := s.store.UpsertBasketItem(ctx, item); err != nil {
		return nil, storeErr(err)
	}
	return item, nil
}

func (s *BasketService) Update(ctx context.Context, userID, id int64, req *UpdateBasketItemRequest) (*models.BasketItem, error) {
	item, err := s.store.GetBasketItem(ctx, id, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	if req.Count != nil {
		item.Count = *req.Count
	}
	if req.VariantData != nil {
		item.VariantData = req.VariantData
	}
	if req.Metadata != nil {
		item.Metadata = req.Metadata
	}
	if err := s.store.UpdateBasketItem(ctx, item); err != nil {
		return nil, storeErr(err)
	}
	return item, nil
}

func (s *BasketService) Delete(ctx context.Context, userID, id int64) error {
	return storeErr(s.store.DeleteBasketItem(ctx, id, userID))
}
