package catalog

import (
	"context"
	"strconv"
	"time"
)

type memoryRepo struct {
	products      map[string]Product
	variants      map[string]Variant
	categories    []Category
	categoriesErr error
	next          int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[string]Product{}, variants: map[string]Variant{}}
}

func (m *memoryRepo) id() string {
	m.next++
	return "id-" + strconv.Itoa(m.next)
}

func (m *memoryRepo) ListProducts(_ context.Context, _ ProductFilters) ([]Product, int, error) {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetProduct(_ context.Context, id string) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetProductBySKU(_ context.Context, sku string) (Product, error) {
	for _, p := range m.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}

func fromInput(id string, in ProductInput) Product {
	return Product{ID: id, SKU: in.SKU, Name: in.Name, Metal: in.Metal, Purity: in.Purity, GrossWeight: in.GrossWeight,
		NetWeight: in.NetWeight, MakingCharge: in.MakingCharge, Price: in.Price, TaxRate: in.TaxRate, IsActive: true, CreatedAt: time.Now()}
}

func (m *memoryRepo) InsertProduct(ctx context.Context, in ProductInput) (Product, error) {
	if _, err := m.GetProductBySKU(ctx, in.SKU); err == nil {
		return Product{}, ErrDuplicateSKU
	}
	p := fromInput(m.id(), in)
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) UpsertProductBySKU(ctx context.Context, in ProductInput) (Product, bool, error) {
	if existing, err := m.GetProductBySKU(ctx, in.SKU); err == nil {
		p := fromInput(existing.ID, in)
		m.products[p.ID] = p
		return p, false, nil
	}
	p, err := m.InsertProduct(ctx, in)
	return p, true, err
}

func (m *memoryRepo) UpdateProduct(_ context.Context, id string, patch ProductPatch) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	m.products[id] = p
	return p, nil
}

func (m *memoryRepo) ListVariants(_ context.Context, productID string) ([]Variant, error) {
	var out []Variant
	for _, v := range m.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertVariant(_ context.Context, productID string, in VariantInput) (Variant, error) {
	v := Variant{ID: m.id(), ProductID: productID, SKU: in.SKU, Name: in.Name, Weight: in.Weight, IsActive: true}
	m.variants[v.ID] = v
	return v, nil
}

func (m *memoryRepo) DeactivateVariant(_ context.Context, productID, variantID string) error {
	v, ok := m.variants[variantID]
	if !ok || v.ProductID != productID {
		return ErrNotFound
	}
	v.IsActive = false
	m.variants[variantID] = v
	return nil
}

func (m *memoryRepo) ListCategories(_ context.Context) ([]Category, error) {
	if m.categoriesErr != nil {
		return nil, m.categoriesErr
	}
	return append([]Category(nil), m.categories...), nil
}

func (m *memoryRepo) InsertCategory(_ context.Context, in CategoryInput) (Category, error) {
	c := Category{ID: m.id(), Name: in.Name, ParentID: in.ParentID, Attributes: in.Attributes}
	m.categories = append(m.categories, c)
	return c, nil
}

func (m *memoryRepo) UpdateCategory(_ context.Context, id string, in CategoryInput) (Category, error) {
	for i, c := range m.categories {
		if c.ID == id {
			m.categories[i] = Category{ID: id, Name: in.Name, ParentID: in.ParentID, Attributes: in.Attributes}
			return m.categories[i], nil
		}
	}
	return Category{}, ErrNotFound
}

func (m *memoryRepo) DeleteCategory(_ context.Context, id string) error {
	for i, c := range m.categories {
		if c.ID == id {
			m.categories = append(m.categories[:i], m.categories[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
