package models

import (
	"time"

	"gorm.io/datatypes"
)

// Category is a node of the self-referential category tree.
type Category struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Slug        string         `db:"slug" json:"slug"`
	Description string         `db:"description" json:"description"`
	ParentID    *int64         `db:"parent_id" json:"parent"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	Position    int            `db:"position" json:"position"`
	Icon        string         `db:"icon" json:"icon"`
	Meta        datatypes.JSON `db:"meta" json:"meta"`
	Children    []*Category    `db:"-" json:"children"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

type Brand struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	Country     string    `db:"country" json:"country"`
	Website     string    `db:"website" json:"website"`
	Logo        string    `db:"logo" json:"logo"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Size types
const (
	SizeTypeClothes   = "clothes"
	SizeTypeShoes     = "shoes"
	SizeTypeAccessory = "accessory"
	SizeTypeUniversal = "universal"
)

type Size struct {
	ID           int64          `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Code         string         `db:"code" json:"code"`
	SizeType     string         `db:"size_type" json:"size_type"`
	Description  string         `db:"description" json:"description"`
	Measurements datatypes.JSON `db:"measurements" json:"measurements"`
}

// Product availability
const (
	ProductInStock    = "in_stock"
	ProductOutOfStock = "out_of_stock"
	ProductPreorder   = "preorder"
)

type Product struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Slug        string         `db:"slug" json:"slug"`
	Description string         `db:"description" json:"description"`
	CategoryID  int64          `db:"category_id" json:"category"`
	BrandID     int64          `db:"brand_id" json:"-"`
	Brand       *Brand         `db:"-" json:"brand"`
	SKU         string         `db:"sku" json:"sku"`
	Price       Money          `db:"price" json:"price"`
	Currency    string         `db:"currency" json:"currency"`
	Status      string         `db:"status" json:"status"`
	IsPublished bool           `db:"is_published" json:"is_published"`
	Attributes  datatypes.JSON `db:"attributes" json:"attributes"`
	Meta        datatypes.JSON `db:"meta" json:"meta"`
	Stock       int            `db:"stock" json:"stock"`
	WeightGrams int            `db:"weight_grams" json:"weight_grams"`
	Images      []ProductImage `db:"-" json:"images"`
	Sizes       []ProductSize  `db:"-" json:"sizes_info"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

type ProductImage struct {
	ID        int64  `db:"id" json:"id"`
	ProductID int64  `db:"product_id" json:"-"`
	Image     string `db:"image" json:"image"`
	AltText   string `db:"alt_text" json:"alt_text"`
	Position  int    `db:"position" json:"position"`
}

type ProductSize struct {
	ID            int64 `db:"id" json:"id"`
	ProductID     int64 `db:"product_id" json:"-"`
	SizeID        int64 `db:"size_id" json:"-"`
	Size          *Size `db:"-" json:"size"`
	PriceModifier Money `db:"price_modifier" json:"price_modifier"`
	Stock         int   `db:"stock" json:"stock"`
}
