package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-erp/aurum/internal/platform/db"
)

// RepositoryPort is the persistence needed by Service.
type RepositoryPort interface {
	ListProducts(ctx context.Context, f ProductFilters) ([]Product, int, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	GetProductBySKU(ctx context.Context, sku string) (Product, error)
	InsertProduct(ctx context.Context, in ProductInput) (Product, error)
	UpsertProductBySKU(ctx context.Context, in ProductInput) (Product, bool, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error)
	ListVariants(ctx context.Context, productID string) ([]Variant, error)
	InsertVariant(ctx context.Context, productID string, in VariantInput) (Variant, error)
	DeactivateVariant(ctx context.Context, productID, variantID string) error
	ListCategories(ctx context.Context) ([]Category, error)
	InsertCategory(ctx context.Context, in CategoryInput) (Category, error)
	UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

// Repository is the PostgreSQL implementation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id::text, sku, name, COALESCE(description, ''), COALESCE(category_id::text, ''), COALESCE(metal, ''), COALESCE(purity, ''),
gross_weight, net_weight, making_charge, price, tax_rate, COALESCE(barcode, ''), COALESCE(hsn_code, ''), reorder_level, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID, &p.Metal, &p.Purity,
		&p.GrossWeight, &p.NetWeight, &p.MakingCharge, &p.Price, &p.TaxRate, &p.Barcode, &p.HSNCode, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) oneProduct(ctx context.Context, query string, args ...any) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return Product{}, ErrNotFound
		case db.IsUniqueViolation(err):
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns a filtered page of products.
func (r *Repository) ListProducts(ctx context.Context, f ProductFilters) ([]Product, int, error) {
	where := []string{"TRUE"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "$?", fmt.Sprintf("$%d", len(args))))
	}
	if f.Search != "" {
		add("(lower(name) LIKE $? OR lower(sku) LIKE $? OR barcode = lower($?))", "%"+strings.ToLower(f.Search)+"%")
	}
	if f.CategoryID != "" {
		add("category_id::text = $?", f.CategoryID)
	}
	if f.Metal != "" {
		add("metal = $?", f.Metal)
	}
	if f.IsActive != nil {
		add("is_active = $?", *f.IsActive)
	}
	cond := strings.Join(where, " AND ")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE `+cond+
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	return r.oneProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id::text = $1`, id)
}

// GetProductBySKU loads a product by SKU.
func (r *Repository) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return r.oneProduct(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
}

const productInsert = `INSERT INTO products (sku, name, description, category_id, metal, purity, gross_weight, net_weight,
making_charge, price, tax_rate, barcode, hsn_code, reorder_level, is_active)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, '')::uuid, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, NULLIF($12, ''), NULLIF($13, ''), $14, TRUE)`

func productArgs(in ProductInput) []any {
	return []any{in.SKU, in.Name, in.Description, in.CategoryID, in.Metal, in.Purity, in.GrossWeight, in.NetWeight,
		in.MakingCharge, in.Price, in.TaxRate, in.Barcode, in.HSNCode, in.ReorderLevel}
}

// InsertProduct creates a product.
func (r *Repository) InsertProduct(ctx context.Context, in ProductInput) (Product, error) {
	return r.oneProduct(ctx, productInsert+` RETURNING `+productColumns, productArgs(in)...)
}

// UpsertProductBySKU creates a product or overwrites the one with the same SKU.
// created reports which happened.
func (r *Repository) UpsertProductBySKU(ctx context.Context, in ProductInput) (Product, bool, error) {
	var created bool
	row := r.pool.QueryRow(ctx, productInsert+`
ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, category_id = EXCLUDED.category_id,
metal = EXCLUDED.metal, purity = EXCLUDED.purity, gross_weight = EXCLUDED.gross_weight, net_weight = EXCLUDED.net_weight,
making_charge = EXCLUDED.making_charge, price = EXCLUDED.price, tax_rate = EXCLUDED.tax_rate, barcode = EXCLUDED.barcode,
hsn_code = EXCLUDED.hsn_code, reorder_level = EXCLUDED.reorder_level, is_active = TRUE, updated_at = NOW()
RETURNING (xmax = 0), `+productColumns, productArgs(in)...)
	var p Product
	err := row.Scan(&created, &p.ID, &p.SKU, &p.Name, &p.Description, &p.CategoryID, &p.Metal, &p.Purity,
		&p.GrossWeight, &p.NetWeight, &p.MakingCharge, &p.Price, &p.TaxRate, &p.Barcode, &p.HSNCode, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, created, err
}

// UpdateProduct applies a patch; soft delete is IsActive=false.
func (r *Repository) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	return r.oneProduct(ctx, `UPDATE products SET
name = COALESCE($2, name), description = COALESCE($3, description), category_id = COALESCE(NULLIF($4, '')::uuid, category_id),
price = COALESCE($5, price), making_charge = COALESCE($6, making_charge), tax_rate = COALESCE($7, tax_rate),
reorder_level = COALESCE($8, reorder_level), is_active = COALESCE($9, is_active), updated_at = NOW()
WHERE id::text = $1 RETURNING `+productColumns,
		id, patch.Name, patch.Description, patch.CategoryID, patch.Price, patch.MakingCharge, patch.TaxRate, patch.ReorderLevel, patch.IsActive)
}

// ListVariants returns the variants of a product.
func (r *Repository) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, product_id::text, sku, name, COALESCE(size, ''), weight, price_delta, is_active, created_at
FROM product_variants WHERE product_id::text = $1 ORDER BY name`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Size, &v.Weight, &v.PriceDelta, &v.IsActive, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertVariant creates a variant.
func (r *Repository) InsertVariant(ctx context.Context, productID string, in VariantInput) (Variant, error) {
	var v Variant
	err := r.pool.QueryRow(ctx, `INSERT INTO product_variants (product_id, sku, name, size, weight, price_delta, is_active)
VALUES ($1::uuid, $2, $3, NULLIF($4, ''), $5, $6, TRUE)
RETURNING id::text, product_id::text, sku, name, COALESCE(size, ''), weight, price_delta, is_active, created_at`,
		productID, in.SKU, in.Name, in.Size, in.Weight, in.PriceDelta).
		Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Size, &v.Weight, &v.PriceDelta, &v.IsActive, &v.CreatedAt)
	if err != nil && db.IsUniqueViolation(err) {
		return Variant{}, ErrDuplicateSKU
	}
	return v, err
}

// DeactivateVariant soft deletes a variant.
func (r *Repository) DeactivateVariant(ctx context.Context, productID, variantID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE product_variants SET is_active = FALSE WHERE id::text = $1 AND product_id::text = $2`, variantID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCategories returns every category.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, name, COALESCE(parent_id::text, ''), attributes, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.Attributes, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertCategory creates a category.
func (r *Repository) InsertCategory(ctx context.Context, in CategoryInput) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, parent_id, attributes) VALUES ($1, NULLIF($2, '')::uuid, $3)
RETURNING id::text, name, COALESCE(parent_id::text, ''), attributes, created_at`, in.Name, in.ParentID, in.Attributes).
		Scan(&c.ID, &c.Name, &c.ParentID, &c.Attributes, &c.CreatedAt)
	return c, err
}

// UpdateCategory replaces a category.
func (r *Repository) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `UPDATE categories SET name = $2, parent_id = NULLIF($3, '')::uuid, attributes = $4 WHERE id::text = $1
RETURNING id::text, name, COALESCE(parent_id::text, ''), attributes, created_at`, id, in.Name, in.ParentID, in.Attributes).
		Scan(&c.ID, &c.Name, &c.ParentID, &c.Attributes, &c.CreatedAt)
	if err != nil && db.IsNoRows(err) {
		return Category{}, ErrNotFound
	}
	return c, err
}

// DeleteCategory removes an unused category.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	var inUse bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE category_id::text = $1)`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse {
		return ErrCategoryInUse
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id::text = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
