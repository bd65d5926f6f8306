package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog item.
type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	CategoryID   string          `json:"category_id,omitempty"`
	Metal        string          `json:"metal,omitempty"`
	Purity       string          `json:"purity,omitempty"`
	GrossWeight  decimal.Decimal `json:"gross_weight"`
	NetWeight    decimal.Decimal `json:"net_weight"`
	MakingCharge decimal.Decimal `json:"making_charge"`
	Price        decimal.Decimal `json:"price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Barcode      string          `json:"barcode,omitempty"`
	HSNCode      string          `json:"hsn_code,omitempty"`
	ReorderLevel int             `json:"reorder_level"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Variant is a size or finish of a product with its own SKU.
type Variant struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Size       string          `json:"size,omitempty"`
	Weight     decimal.Decimal `json:"weight"`
	PriceDelta decimal.Decimal `json:"price_delta"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Category groups products and declares the attributes they carry.
type Category struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ParentID   string    `json:"parent_id,omitempty"`
	Attributes []string  `json:"attributes"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProductInput creates or replaces a product.
type ProductInput struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	CategoryID   string          `json:"category_id"`
	Metal        string          `json:"metal" validate:"omitempty,oneof=gold silver platinum diamond other"`
	Purity       string          `json:"purity" validate:"max=16"`
	GrossWeight  decimal.Decimal `json:"gross_weight"`
	NetWeight    decimal.Decimal `json:"net_weight"`
	MakingCharge decimal.Decimal `json:"making_charge"`
	Price        decimal.Decimal `json:"price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	Barcode      string          `json:"barcode" validate:"max=64"`
	HSNCode      string          `json:"hsn_code" validate:"max=16"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
}

// ProductPatch is a partial update.
type ProductPatch struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	CategoryID   *string          `json:"category_id"`
	Price        *decimal.Decimal `json:"price"`
	MakingCharge *decimal.Decimal `json:"making_charge"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	ReorderLevel *int             `json:"reorder_level"`
	IsActive     *bool            `json:"is_active"`
}

// VariantInput creates a variant.
type VariantInput struct {
	SKU        string          `json:"sku" validate:"required,max=64"`
	Name       string          `json:"name" validate:"required,max=120"`
	Size       string          `json:"size" validate:"max=32"`
	Weight     decimal.Decimal `json:"weight"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// CategoryInput creates or renames a category.
type CategoryInput struct {
	Name       string   `json:"name" validate:"required,max=120"`
	ParentID   string   `json:"parent_id"`
	Attributes []string `json:"attributes" validate:"dive,required,max=64"`
}

// ProductFilters narrows product listings.
type ProductFilters struct {
	Search     string
	CategoryID string
	Metal      string
	IsActive   *bool
	Limit      int
	Offset     int
}

// Categories is a category listing that may come from the local fallback.
type Categories struct {
	Items    []Category `json:"items"`
	Degraded bool       `json:"degraded"`
	AsOf     time.Time  `json:"as_of,omitempty"`
}

// RowError reports a rejected import row. Row is 1-based and counts the header.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarises a product import.
type ImportResult struct {
	Imported int        `json:"imported"`
	Updated  int        `json:"updated"`
	Errors   []RowError `json:"errors"`
}
