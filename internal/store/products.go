package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"storefront/internal/models"
)

const productColumns = `id, name, slug, description, category_id, brand_id, sku, price, currency,
	status, is_published, attributes, meta, stock, weight_grams, created_at, updated_at`

var productList = listQuery{
	searchCols:   []string{"name", "slug", "sku"},
	orderCols:    map[string]string{"created_at": "created_at", "price": "price", "name": "name"},
	defaultOrder: "created_at DESC",
}

// ProductFilter narrows a product listing. Nil fields are not applied.
type ProductFilter struct {
	CategoryID  *int64
	BrandID     *int64
	Status      string
	IsPublished *bool
	ListOptions
}

func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]*models.Product, error) {
	query, args := productList.apply(`
		SELECT `+productColumns+` FROM products
		WHERE ($1::bigint IS NULL OR category_id = $1)
			AND ($2::bigint IS NULL OR brand_id = $2)
			AND ($3 = '' OR status = $3)
			AND ($4::boolean IS NULL OR is_published = $4)`,
		[]interface{}{f.CategoryID, f.BrandID, f.Status, f.IsPublished}, f.ListOptions)

	products := []*models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	if err := s.loadProductRelations(ctx, s.db, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.getProduct(ctx, s.db, id)
}

func (s *Store) getProduct(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Product, error) {
	var p models.Product
	if err := sqlx.GetContext(ctx, q, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	if err := s.loadProductRelations(ctx, q, []*models.Product{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// loadProductRelations fills Brand, Images and Sizes for a page of products.
func (s *Store) loadProductRelations(ctx context.Context, q sqlx.QueryerContext, products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(products))
	brandIDs := make([]int64, 0, len(products))
	byID := make(map[int64]*models.Product, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
		brandIDs = append(brandIDs, p.BrandID)
		p.Images = []models.ProductImage{}
		p.Sizes = []models.ProductSize{}
		byID[p.ID] = p
	}

	var brands []models.Brand
	if err := sqlx.SelectContext(ctx, q, &brands,
		`SELECT `+brandColumns+` FROM brands WHERE id = ANY($1)`, pq.Array(brandIDs)); err != nil {
		return fmt.Errorf("failed to load brands: %w", err)
	}
	brandByID := make(map[int64]*models.Brand, len(brands))
	for i := range brands {
		brandByID[brands[i].ID] = &brands[i]
	}

	var images []models.ProductImage
	if err := sqlx.SelectContext(ctx, q, &images, `
		SELECT id, product_id, image, alt_text, position FROM product_images
		WHERE product_id = ANY($1) ORDER BY position, id`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load product images: %w", err)
	}

	var sizes []models.ProductSize
	if err := sqlx.SelectContext(ctx, q, &sizes, `
		SELECT id, product_id, size_id, price_modifier, stock FROM product_sizes
		WHERE product_id = ANY($1) ORDER BY id`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load product sizes: %w", err)
	}
	sizeIDs := make([]int64, 0, len(sizes))
	for _, ps := range sizes {
		sizeIDs = append(sizeIDs, ps.SizeID)
	}
	var sizeRows []models.Size
	if len(sizeIDs) > 0 {
		if err := sqlx.SelectContext(ctx, q, &sizeRows,
			`SELECT `+sizeColumns+` FROM sizes WHERE id = ANY($1)`, pq.Array(sizeIDs)); err != nil {
			return fmt.Errorf("failed to load sizes: %w", err)
		}
	}
	sizeByID := make(map[int64]*models.Size, len(sizeRows))
	for i := range sizeRows {
		sizeByID[sizeRows[i].ID] = &sizeRows[i]
	}

	for _, p := range products {
		p.Brand = brandByID[p.BrandID]
	}
	for _, img := range images {
		p := byID[img.ProductID]
		p.Images = append(p.Images, img)
	}
	for _, ps := range sizes {
		ps.Size = sizeByID[ps.SizeID]
		p := byID[ps.ProductID]
		p.Sizes = append(p.Sizes, ps)
	}
	return nil
}

// CreateProduct inserts a product together with its images and sizes.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	p.Attributes = models.JSONOr(p.Attributes, `{}`)
	p.Meta = models.JSONOr(p.Meta, `{}`)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := namedGet(ctx, tx, &id, `
			INSERT INTO products (name, slug, description, category_id, brand_id, sku, price, currency,
				status, is_published, attributes, meta, stock, weight_grams)
			VALUES (:name, :slug, :description, :category_id, :brand_id, :sku, :price, :currency,
				:status, :is_published, :attributes, :meta, :stock, :weight_grams)
			RETURNING id`, p)
		if err != nil {
			return err
		}
		if err := replaceProductImages(ctx, tx, id, p.Images); err != nil {
			return err
		}
		if err := replaceProductSizes(ctx, tx, id, p.Sizes); err != nil {
			return err
		}

		fresh, err := s.getProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		*p = *fresh
		return nil
	})
}

// UpdateProduct saves the product row. Images and sizes are replaced only
// when the corresponding flag is set.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product, replaceImages, replaceSizes bool) error {
	p.Attributes = models.JSONOr(p.Attributes, `{}`)
	p.Meta = models.JSONOr(p.Meta, `{}`)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := requireAffected(namedExec(ctx, tx, `
			UPDATE products SET name = :name, slug = :slug, description = :description,
				category_id = :category_id, brand_id = :brand_id, sku = :sku, price = :price,
				currency = :currency, status = :status, is_published = :is_published,
				attributes = :attributes, meta = :meta, stock = :stock,
				weight_grams = :weight_grams, updated_at = NOW()
			WHERE id = :id`, p))
		if err != nil {
			return err
		}
		if replaceImages {
			if err := replaceProductImages(ctx, tx, p.ID, p.Images); err != nil {
				return err
			}
		}
		if replaceSizes {
			if err := replaceProductSizes(ctx, tx, p.ID, p.Sizes); err != nil {
				return err
			}
		}

		fresh, err := s.getProduct(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		*p = *fresh
		return nil
	})
}

func replaceProductImages(ctx context.Context, tx *sqlx.Tx, productID int64, images []models.ProductImage) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("failed to clear product images: %w", err)
	}
	for _, img := range images {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_images (product_id, image, alt_text, position)
			VALUES ($1, $2, $3, $4)`, productID, img.Image, img.AltText, img.Position)
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

func replaceProductSizes(ctx context.Context, tx *sqlx.Tx, productID int64, sizes []models.ProductSize) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_sizes WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("failed to clear product sizes: %w", err)
	}
	for _, ps := range sizes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_sizes (product_id, size_id, price_modifier, stock)
			VALUES ($1, $2, $3, $4)`, productID, ps.SizeID, ps.PriceModifier, ps.Stock)
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

// SetProductMeta overwrites the meta column without touching updated_at.
func (s *Store) SetProductMeta(ctx context.Context, id int64, meta datatypes.JSON) error {
	return requireAffected(execAffected(ctx, s,
		`UPDATE products SET meta = $2 WHERE id = $1`, id, models.JSONOr(meta, `{}`)))
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM products WHERE id = $1`, id))
}

const basketSelect = `
	SELECT b.id, b.user_id, b.product_id, p.name AS product_name, p.price AS product_price,
		b.count, b.price, b.currency, b.variant_key, b.variant_data, b.metadata,
		b.created_at, b.updated_at
	FROM basket_items b JOIN products p ON p.id = b.product_id`

// ListBasketItems returns the user's basket, newest first.
func (s *Store) ListBasketItems(ctx context.Context, userID int64) ([]models.BasketItem, error) {
	items := []models.BasketItem{}
	err := s.db.SelectContext(ctx, &items, basketSelect+` WHERE b.user_id = $1 ORDER BY b.created_at DESC, b.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list basket items: %w", err)
	}
	return items, nil
}

func (s *Store) GetBasketItem(ctx context.Context, id, userID int64) (*models.BasketItem, error) {
	var item models.BasketItem
	err := s.db.GetContext(ctx, &item, basketSelect+` WHERE b.id = $1 AND b.user_id = $2`, id, userID)
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// UpsertBasketItem inserts a basket line or overwrites the existing line for
// the same (user, product, variant_key).
func (s *Store) UpsertBasketItem(ctx context.Context, item *models.BasketItem) error {
	item.VariantData = models.JSONOr(item.VariantData, `{}`)
	item.Metadata = models.JSONOr(item.Metadata, `{}`)

	var id int64
	err := namedGet(ctx, s.db, &id, `
		INSERT INTO basket_items (user_id, product_id, count, price, currency, variant_key,
			variant_data, metadata)
		VALUES (:user_id, :product_id, :count, :price, :currency, :variant_key,
			:variant_data, :metadata)
		ON CONFLICT ON CONSTRAINT unique_basket_item_per_variant DO UPDATE
		SET count = EXCLUDED.count, price = EXCLUDED.price, currency = EXCLUDED.currency,
			variant_data = EXCLUDED.variant_data, metadata = EXCLUDED.metadata, updated_at = NOW()
		RETURNING id`, item)
	if err != nil {
		return err
	}

	fresh, err := s.GetBasketItem(ctx, id, item.UserID)
	if err != nil {
		return err
	}
	*item = *fresh
	return nil
}

// UpdateBasketItem saves count, variant_data and metadata of the caller's line.
func (s *Store) UpdateBasketItem(ctx context.Context, item *models.BasketItem) error {
	item.VariantData = models.JSONOr(item.VariantData, `{}`)
	item.Metadata = models.JSONOr(item.Metadata, `{}`)

	err := requireAffected(namedExec(ctx, s.db, `
		UPDATE basket_items SET count = :count, variant_data = :variant_data,
			metadata = :metadata, updated_at = NOW()
		WHERE id = :id AND user_id = :user_id`, item))
	if err != nil {
		return err
	}

	fresh, err := s.GetBasketItem(ctx, item.ID, item.UserID)
	if err != nil {
		return err
	}
	*item = *fresh
	return nil
}

func (s *Store) DeleteBasketItem(ctx context.Context, id, userID int64) error {
	return requireAffected(execAffected(ctx, s,
		`DELETE FROM basket_items WHERE id = $1 AND user_id = $2`, id, userID))
}
