package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

const categoryTreeCacheKey = "categories:tree"

// CatalogStore is the persistence behind categories, brands, sizes, products
// and the payment/delivery method directories.
type CatalogStore interface {
	ListCategories(ctx context.Context, opts store.ListOptions) ([]*models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	CategoryAncestors(ctx context.Context, id int64) ([]int64, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	UpdateCategory(ctx context.Context, c *models.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListBrands(ctx context.Context, opts store.ListOptions) ([]models.Brand, error)
	GetBrand(ctx context.Context, id int64) (*models.Brand, error)
	CreateBrand(ctx context.Context, b *models.Brand) error
	UpdateBrand(ctx context.Context, b *models.Brand) error
	DeleteBrand(ctx context.Context, id int64) error

	ListSizes(ctx context.Context, opts store.ListOptions) ([]models.Size, error)
	GetSize(ctx context.Context, id int64) (*models.Size, error)
	CreateSize(ctx context.Context, sz *models.Size) error
	UpdateSize(ctx context.Context, sz *models.Size) error
	DeleteSize(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, f store.ProductFilter) ([]*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product, replaceImages, replaceSizes bool) error
	SetProductMeta(ctx context.Context, id int64, meta datatypes.JSON) error
	DeleteProduct(ctx context.Context, id int64) error

	ListPaymentMethods(ctx context.Context, opts store.ListOptions) ([]models.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error)
	CreatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error
	UpdatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error
	DeletePaymentMethod(ctx context.Context, id int64) error

	ListDeliveryMethods(ctx context.Context, opts store.ListOptions) ([]models.DeliveryMethod, error)
	GetDeliveryMethod(ctx context.Context, id int64) (*models.DeliveryMethod, error)
	CreateDeliveryMethod(ctx context.Context, m *models.DeliveryMethod) error
	UpdateDeliveryMethod(ctx context.Context, m *models.DeliveryMethod) error
	DeleteDeliveryMethod(ctx context.Context, id int64) error

	ListTransactions(ctx context.Context, opts store.ListOptions) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
}

// Cache stores serialized read models.
type Cache interface {
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteCache(ctx context.Context, keys ...string) error
}

type CatalogService struct {
	store     CatalogStore
	cache     Cache
	cacheTTL  time.Duration
	publisher Publisher
	logger    *zap.Logger
}

func NewCatalogService(store CatalogStore, cache Cache, cacheTTL time.Duration, publisher Publisher) *CatalogService {
	return &CatalogService{
		store:     store,
		cache:     cache,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Categories

// ListCategories returns a flat listing, or with tree set only the roots with
// their descendants nested under Children. The unfiltered tree is cached.
func (s *CatalogService) ListCategories(ctx context.Context, opts store.ListOptions, tree bool) ([]*models.Category, error) {
	if !tree {
		return s.store.ListCategories(ctx, opts)
	}

	cacheable := opts == (store.ListOptions{})
	if cacheable {
		if roots, ok := s.cachedTree(ctx); ok {
			return roots, nil
		}
	}

	all, err := s.store.ListCategories(ctx, store.ListOptions{})
	if err != nil {
		return nil, err
	}
	roots := BuildCategoryTree(all)

	if !cacheable {
		matching, err := s.store.ListCategories(ctx, opts)
		if err != nil {
			return nil, err
		}
		return filterRoots(roots, matching), nil
	}

	if s.cache != nil {
		if raw, err := json.Marshal(roots); err == nil {
			if err := s.cache.SetCache(ctx, categoryTreeCacheKey, raw, s.cacheTTL); err != nil {
				s.logger.Warn("Failed to cache category tree", zap.Error(err))
			}
		}
	}
	return roots, nil
}

func (s *CatalogService) cachedTree(ctx context.Context) ([]*models.Category, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.GetCache(ctx, categoryTreeCacheKey)
	if err != nil {
		s.logger.Warn("Category tree cache unavailable", zap.Error(err))
		util.CacheLookups.WithLabelValues("category_tree", "error").Inc()
		return nil, false
	}
	if !ok {
		util.CacheLookups.WithLabelValues("category_tree", "miss").Inc()
		return nil, false
	}

	var roots []*models.Category
	if err := json.Unmarshal(raw, &roots); err != nil {
		util.CacheLookups.WithLabelValues("category_tree", "error").Inc()
		return nil, false
	}
	util.CacheLookups.WithLabelValues("category_tree", "hit").Inc()
	return roots, true
}

func (s *CatalogService) invalidateTree(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteCache(ctx, categoryTreeCacheKey); err != nil {
		s.logger.Warn("Failed to invalidate category tree", zap.Error(err))
	}
}

// BuildCategoryTree links categories into a forest. Input order is kept
// among siblings, so callers pass them ordered by (position, name). Every
// node's Children is non-nil.
func BuildCategoryTree(all []*models.Category) []*models.Category {
	byID := make(map[int64]*models.Category, len(all))
	for _, c := range all {
		c.Children = []*models.Category{}
		byID[c.ID] = c
	}

	roots := []*models.Category{}
	for _, c := range all {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		if parent, ok := byID[*c.ParentID]; ok {
			parent.Children = append(parent.Children, c)
		}
	}
	return roots
}

func filterRoots(roots, matching []*models.Category) []*models.Category {
	keep := make(map[int64]bool, len(matching))
	for _, c := range matching {
		keep[c.ID] = true
	}
	out := []*models.Category{}
	for _, r := range roots {
		if keep[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func (s *CatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	return c, storeErr(err)
}

func (s *CatalogService) CreateCategory(ctx context.Context, c *models.Category) error {
	if c.ParentID != nil {
		if _, err := s.store.GetCategory(ctx, *c.ParentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NewValidationError("parent", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *c.ParentID))
			}
			return err
		}
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return storeErr(err)
	}
	s.invalidateTree(ctx)
	return nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, c *models.Category) error {
	if err := s.checkParent(ctx, c); err != nil {
		return err
	}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return storeErr(err)
	}
	s.invalidateTree(ctx)
	return nil
}

// checkParent rejects a parent that is the category itself or one of its
// descendants.
func (s *CatalogService) checkParent(ctx context.Context, c *models.Category) error {
	if c.ParentID == nil {
		return nil
	}
	chain, err := s.store.CategoryAncestors(ctx, *c.ParentID)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return NewValidationError("parent", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *c.ParentID))
	}
	for _, id := range chain {
		if id == c.ID {
			return NewValidationError("parent", "A category cannot be nested under itself or its descendants.")
		}
	}
	return nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return storeErr(err)
	}
	s.invalidateTree(ctx)
	return nil
}

// Brands

func (s *CatalogService) ListBrands(ctx context.Context, opts store.ListOptions) ([]models.Brand, error) {
	return s.store.ListBrands(ctx, opts)
}

func (s *CatalogService) GetBrand(ctx context.Context, id int64) (*models.Brand, error) {
	b, err := s.store.GetBrand(ctx, id)
	return b, storeErr(err)
}

func (s *CatalogService) CreateBrand(ctx context.Context, b *models.Brand) error {
	return storeErr(s.store.CreateBrand(ctx, b))
}

func (s *CatalogService) UpdateBrand(ctx context.Context, b *models.Brand) error {
	return storeErr(s.store.UpdateBrand(ctx, b))
}

func (s *CatalogService) DeleteBrand(ctx context.Context, id int64) error {
	return storeErr(s.store.DeleteBrand(ctx, id))
}

// Sizes

func (s *CatalogService) ListSizes(ctx context.Context, opts store.ListOptions) ([]models.Size, error) {
	return s.store.ListSizes(ctx, opts)
}

func (s *CatalogService) GetSize(ctx context.Context, id int64) (*models.Size, error) {
	sz, err := s.store.GetSize(ctx, id)
	return sz, storeErr(err)
}

func (s *CatalogService) CreateSize(ctx context.Context, sz *models.Size) error {
	return storeErr(s.store.CreateSize(ctx, sz))
}

func (s *CatalogService) UpdateSize(ctx context.Context, sz *models.Size) error {
	return storeErr(s.store.UpdateSize(ctx, sz))
}

func (s *CatalogService) DeleteSize(ctx context.Context, id int64) error {
	return storeErr(s.store.DeleteSize(ctx, id))
}

// Products

// ProductSizeInput links a size to a product on write.
type ProductSizeInput struct {
	SizeID        int64        `json:"size_id" binding:"required"`
	PriceModifier models.Money `json:"price_modifier"`
	Stock         int          `json:"stock" binding:"min=0"`
}

// ProductInput is the write form of a product. A nil Images or Sizes leaves
// the stored list untouched on update.
type ProductInput struct {
	Name        string                 `json:"name" binding:"required"`
	Slug        string                 `json:"slug" binding:"required"`
	Description string                 `json:"description"`
	CategoryID  int64                  `json:"category" binding:"required"`
	BrandID     int64                  `json:"brand_id" binding:"required"`
	SKU         string                 `json:"sku" binding:"required"`
	Price       models.Money           `json:"price"`
	Currency    string                 `json:"currency"`
	Status      string                 `json:"status" binding:"omitempty,oneof=in_stock out_of_stock preorder"`
	IsPublished bool                   `json:"is_published"`
	Attributes  datatypes.JSON         `json:"attributes"`
	Meta        datatypes.JSON         `json:"meta"`
	Stock       int                    `json:"stock" binding:"min=0"`
	WeightGrams int                    `json:"weight_grams" binding:"min=0"`
	Images      *[]models.ProductImage `json:"images"`
	Sizes       *[]ProductSizeInput    `json:"sizes_info"`
}

func (in *ProductInput) apply(p *models.Product) {
	p.Name = in.Name
	p.Slug = in.Slug
	p.Description = in.Description
	p.CategoryID = in.CategoryID
	p.BrandID = in.BrandID
	p.SKU = in.SKU
	p.Price = models.NewMoney(in.Price.Decimal)
	p.Currency = in.Currency
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	p.Status = in.Status
	if p.Status == "" {
		p.Status = models.ProductInStock
	}
	p.IsPublished = in.IsPublished
	p.Attributes = in.Attributes
	if in.Meta != nil {
		p.Meta = in.Meta
	}
	p.Stock = in.Stock
	p.WeightGrams = in.WeightGrams
	if in.Images != nil {
		p.Images = *in.Images
	}
	if in.Sizes != nil {
		p.Sizes = make([]models.ProductSize, 0, len(*in.Sizes))
		for _, sz := range *in.Sizes {
			p.Sizes = append(p.Sizes, models.ProductSize{
				SizeID:        sz.SizeID,
				PriceModifier: models.NewMoney(sz.PriceModifier.Decimal),
				Stock:         sz.Stock,
			})
		}
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, f store.ProductFilter) ([]*models.Product, error) {
	return s.store.ListProducts(ctx, f)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	return p, storeErr(err)
}

func (s *CatalogService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	p := &models.Product{}
	in.apply(p)
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	s.publishProduct(ctx, p)
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in *ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	in.apply(p)
	if err := s.store.UpdateProduct(ctx, p, in.Images != nil, in.Sizes != nil); err != nil {
		return nil, storeErr(err)
	}
	s.publishProduct(ctx, p)
	return p, nil
}

// publishProduct pushes a saved published product to the product stream and
// stores the resulting id in meta.last_stream_id.
func (s *CatalogService) publishProduct(ctx context.Context, p *models.Product) {
	if !p.IsPublished || s.publisher == nil {
		return
	}
	streamID := s.publisher.Publish(ctx, models.EventKindProduct, models.ProductRecord(p))
	if streamID == "" {
		return
	}

	meta := map[string]interface{}{}
	_ = json.Unmarshal(p.Meta, &meta)
	meta["last_stream_id"] = streamID
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := s.store.SetProductMeta(ctx, p.ID, raw); err != nil {
		s.logger.Error("Failed to record product stream id",
			zap.Int64("product_id", p.ID),
			zap.Error(err))
		return
	}
	p.Meta = raw
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	return storeErr(s.store.DeleteProduct(ctx, id))
}

// Payment and delivery methods

func (s *CatalogService) ListPaymentMethods(ctx context.Context, opts store.ListOptions) ([]models.PaymentMethod, error) {
	return s.store.ListPaymentMethods(ctx, opts)
}

func (s *CatalogService) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	m, err := s.store.GetPaymentMethod(ctx, id)
	return m, storeErr(err)
}

func (s *CatalogService) CreatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error {
	return storeErr(s.store.CreatePaymentMethod(ctx, m))
}

func (s *CatalogService) UpdatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error {
	return storeErr(s.store.UpdatePaymentMethod(ctx, m))
}

func (s *CatalogService) DeletePaymentMethod(ctx context.Context, id int64) error {
	return storeErr(s.store.DeletePaymentMethod(ctx, id))
}

func (s *CatalogService) ListDeliveryMethods(ctx context.Context, opts store.ListOptions) ([]models.DeliveryMethod, error) {
	return s.store.ListDeliveryMethods(ctx, opts)
}

func (s *CatalogService) GetDeliveryMethod(ctx context.Context, id int64) (*models.DeliveryMethod, error) {
	m, err := s.store.GetDeliveryMethod(ctx, id)
	return m, storeErr(err)
}

func (s *CatalogService) CreateDeliveryMethod(ctx context.Context, m *models.DeliveryMethod) error {
	return storeErr(s.store.CreateDeliveryMethod(ctx, m))
}

func (s *CatalogService) UpdateDeliveryMethod(ctx context.Context, m *models.DeliveryMethod) error {
	return storeErr(s.store.UpdateDeliveryMethod(ctx, m))
}

func (s *CatalogService) DeleteDeliveryMethod(ctx context.Context, id int64) error {
	return storeErr(s.store.DeleteDeliveryMethod(ctx, id))
}

// Transactions

func (s *CatalogService) ListTransactions(ctx context.Context, opts store.ListOptions) ([]models.Transaction, error) {
	return s.store.ListTransactions(ctx, opts)
}

func (s *CatalogService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	return t, storeErr(err)
}
