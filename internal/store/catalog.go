package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

const categoryColumns = `id, name, slug, description, parent_id, is_active, position, icon, meta,
	created_at, updated_at`

var categoryList = listQuery{
	searchCols:   []string{"name", "slug"},
	orderCols:    map[string]string{"position": "position", "created_at": "created_at", "name": "name"},
	defaultOrder: "position ASC, name ASC",
}

func (s *Store) ListCategories(ctx context.Context, opts ListOptions) ([]*models.Category, error) {
	query, args := categoryList.apply(`SELECT `+categoryColumns+` FROM categories WHERE TRUE`, nil, opts)
	categories := []*models.Category{}
	if err := s.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	if err := s.db.GetContext(ctx, &c, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// CategoryAncestors returns id followed by the ids of all its ancestors.
func (s *Store) CategoryAncestors(ctx context.Context, id int64) ([]int64, error) {
	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids, `
		WITH RECURSIVE chain AS (
			SELECT id, parent_id FROM categories WHERE id = $1
			UNION
			SELECT c.id, c.parent_id FROM categories c JOIN chain ON c.id = chain.parent_id
		)
		SELECT id FROM chain`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to walk category ancestors: %w", err)
	}
	return ids, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	c.Meta = models.JSONOr(c.Meta, `{}`)
	return namedGet(ctx, s.db, c, `
		INSERT INTO categories (name, slug, description, parent_id, is_active, position, icon, meta)
		VALUES (:name, :slug, :description, :parent_id, :is_active, :position, :icon, :meta)
		RETURNING `+categoryColumns, c)
}

func (s *Store) UpdateCategory(ctx context.Context, c *models.Category) error {
	c.Meta = models.JSONOr(c.Meta, `{}`)
	return namedGet(ctx, s.db, c, `
		UPDATE categories SET name = :name, slug = :slug, description = :description,
			parent_id = :parent_id, is_active = :is_active, position = :position, icon = :icon,
			meta = :meta, updated_at = NOW()
		WHERE id = :id
		RETURNING `+categoryColumns, c)
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM categories WHERE id = $1`, id))
}

const brandColumns = `id, name, slug, description, country, website, logo, created_at, updated_at`

var brandList = listQuery{
	searchCols:   []string{"name", "slug", "country"},
	orderCols:    map[string]string{"name": "name", "created_at": "created_at"},
	defaultOrder: "name ASC",
}

func (s *Store) ListBrands(ctx context.Context, opts ListOptions) ([]models.Brand, error) {
	query, args := brandList.apply(`SELECT `+brandColumns+` FROM brands WHERE TRUE`, nil, opts)
	brands := []models.Brand{}
	if err := s.db.SelectContext(ctx, &brands, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return brands, nil
}

func (s *Store) GetBrand(ctx context.Context, id int64) (*models.Brand, error) {
	var b models.Brand
	if err := s.db.GetContext(ctx, &b, `SELECT `+brandColumns+` FROM brands WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (s *Store) CreateBrand(ctx context.Context, b *models.Brand) error {
	return namedGet(ctx, s.db, b, `
		INSERT INTO brands (name, slug, description, country, website, logo)
		VALUES (:name, :slug, :description, :country, :website, :logo)
		RETURNING `+brandColumns, b)
}

func (s *Store) UpdateBrand(ctx context.Context, b *models.Brand) error {
	return namedGet(ctx, s.db, b, `
		UPDATE brands SET name = :name, slug = :slug, description = :description,
			country = :country, website = :website, logo = :logo, updated_at = NOW()
		WHERE id = :id
		RETURNING `+brandColumns, b)
}

func (s *Store) DeleteBrand(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM brands WHERE id = $1`, id))
}

const sizeColumns = `id, name, code, size_type, description, measurements`

var sizeList = listQuery{
	searchCols:   []string{"name", "code"},
	orderCols:    map[string]string{"name": "name", "code": "code", "size_type": "size_type"},
	defaultOrder: "size_type ASC, name ASC",
}

func (s *Store) ListSizes(ctx context.Context, opts ListOptions) ([]models.Size, error) {
	query, args := sizeList.apply(`SELECT `+sizeColumns+` FROM sizes WHERE TRUE`, nil, opts)
	sizes := []models.Size{}
	if err := s.db.SelectContext(ctx, &sizes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sizes: %w", err)
	}
	return sizes, nil
}

func (s *Store) GetSize(ctx context.Context, id int64) (*models.Size, error) {
	var sz models.Size
	if err := s.db.GetContext(ctx, &sz, `SELECT `+sizeColumns+` FROM sizes WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &sz, nil
}

func (s *Store) CreateSize(ctx context.Context, sz *models.Size) error {
	sz.Measurements = models.JSONOr(sz.Measurements, `{}`)
	return namedGet(ctx, s.db, sz, `
		INSERT INTO sizes (name, code, size_type, description, measurements)
		VALUES (:name, :code, :size_type, :description, :measurements)
		RETURNING `+sizeColumns, sz)
}

func (s *Store) UpdateSize(ctx context.Context, sz *models.Size) error {
	sz.Measurements = models.JSONOr(sz.Measurements, `{}`)
	return namedGet(ctx, s.db, sz, `
		UPDATE sizes SET name = :name, code = :code, size_type = :size_type,
			description = :description, measurements = :measurements
		WHERE id = :id
		RETURNING `+sizeColumns, sz)
}

func (s *Store) DeleteSize(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM sizes WHERE id = $1`, id))
}

const paymentMethodColumns = `id, name, code, description, is_active, provider, logo, fee_percent,
	metadata, created_at, updated_at`

var paymentMethodList = listQuery{
	searchCols:   []string{"name", "code", "provider"},
	orderCols:    map[string]string{"name": "name", "created_at": "created_at"},
	defaultOrder: "name ASC",
}

func (s *Store) ListPaymentMethods(ctx context.Context, opts ListOptions) ([]models.PaymentMethod, error) {
	query, args := paymentMethodList.apply(`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE TRUE`, nil, opts)
	methods := []models.PaymentMethod{}
	if err := s.db.SelectContext(ctx, &methods, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := s.db.GetContext(ctx, &m, `SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Store) CreatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error {
	m.Metadata = models.JSONOr(m.Metadata, `{}`)
	return namedGet(ctx, s.db, m, `
		INSERT INTO payment_methods (name, code, description, is_active, provider, logo, fee_percent, metadata)
		VALUES (:name, :code, :description, :is_active, :provider, :logo, :fee_percent, :metadata)
		RETURNING `+paymentMethodColumns, m)
}

func (s *Store) UpdatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error {
	m.Metadata = models.JSONOr(m.Metadata, `{}`)
	return namedGet(ctx, s.db, m, `
		UPDATE payment_methods SET name = :name, code = :code, description = :description,
			is_active = :is_active, provider = :provider, logo = :logo,
			fee_percent = :fee_percent, metadata = :metadata, updated_at = NOW()
		WHERE id = :id
		RETURNING `+paymentMethodColumns, m)
}

func (s *Store) DeletePaymentMethod(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM payment_methods WHERE id = $1`, id))
}

const deliveryMethodColumns = `id, name, code, description, is_active, min_days, max_days,
	base_price, price_per_kg, logo, metadata, created_at, updated_at`

var deliveryMethodList = listQuery{
	searchCols:   []string{"name", "code"},
	orderCols:    map[string]string{"name": "name", "base_price": "base_price", "created_at": "created_at"},
	defaultOrder: "name ASC",
}

func (s *Store) ListDeliveryMethods(ctx context.Context, opts ListOptions) ([]models.DeliveryMethod, error) {
	query, args := deliveryMethodList.apply(`SELECT `+deliveryMethodColumns+` FROM delivery_methods WHERE TRUE`, nil, opts)
	methods := []models.DeliveryMethod{}
	if err := s.db.SelectContext(ctx, &methods, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list delivery methods: %w", err)
	}
	return methods, nil
}

func (s *Store) GetDeliveryMethod(ctx context.Context, id int64) (*models.DeliveryMethod, error) {
	var m models.DeliveryMethod
	err := s.db.GetContext(ctx, &m, `SELECT `+deliveryMethodColumns+` FROM delivery_methods WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *Store) CreateDeliveryMethod(ctx context.Context, m *models.DeliveryMethod) error {
	m.Metadata = models.JSONOr(m.Metadata, `{}`)
	return namedGet(ctx, s.db, m, `
		INSERT INTO delivery_methods (name, code, description, is_active, min_days, max_days,
			base_price, price_per_kg, logo, metadata)
		VALUES (:name, :code, :description, :is_active, :min_days, :max_days,
			:base_price, :price_per_kg, :logo, :metadata)
		RETURNING `+deliveryMethodColumns, m)
}

func (s *Store) UpdateDeliveryMethod(ctx context.Context, m *models.DeliveryMethod) error {
	m.Metadata = models.JSONOr(m.Metadata, `{}`)
	return namedGet(ctx, s.db, m, `
		UPDATE delivery_methods SET name = :name, code = :code, description = :description,
			is_active = :is_active, min_days = :min_days, max_days = :max_days,
			base_price = :base_price, price_per_kg = :price_per_kg, logo = :logo,
			metadata = :metadata, updated_at = NOW()
		WHERE id = :id
		RETURNING `+deliveryMethodColumns, m)
}

func (s *Store) DeleteDeliveryMethod(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM delivery_methods WHERE id = $1`, id))
}
