package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/platform/kvstore"
	"github.com/aurum-erp/aurum/internal/shared"
)

var (
	// ErrNotFound indicates a missing product, variant or category.
	ErrNotFound = fmt.Errorf("catalog: %w", httpx.ErrNotFound)
	// ErrDuplicateSKU indicates the SKU is taken.
	ErrDuplicateSKU = fmt.Errorf("catalog: sku already exists: %w", httpx.ErrDuplicate)
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = fmt.Errorf("catalog: %w", httpx.ErrValidation)
	// ErrCategoryInUse blocks deleting a category with products.
	ErrCategoryInUse = fmt.Errorf("catalog: category has products: %w", httpx.ErrConflict)
	// ErrDegraded is returned in strict mode when only stale local data is available.
	ErrDegraded = fmt.Errorf("catalog: backend unavailable, only cached data: %w", httpx.ErrUnavailable)
)

const categoriesCacheKey = "catalog:categories"

// LocalStore keeps the last good copy of slow-changing catalog data.
type LocalStore interface {
	Put(key string, v any) error
	Get(key string, dst any) (time.Time, error)
}

// Service implements catalog business rules.
type Service struct {
	repo     RepositoryPort
	local    LocalStore
	activity *shared.ActivityLogger
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service. local may be nil to disable the fallback.
func NewService(repo RepositoryPort, local LocalStore, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, local: local, activity: activity, validate: validator.New(), logger: logger}
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, f ProductFilters) ([]Product, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	return s.repo.ListProducts(ctx, f)
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// CreateProduct validates and stores a product.
func (s *Service) CreateProduct(ctx context.Context, actorID string, in ProductInput) (Product, error) {
	in = normalizeProduct(in)
	if err := s.validateProduct(in); err != nil {
		return Product{}, err
	}
	p, err := s.repo.InsertProduct(ctx, in)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "product.created", p.ID, map[string]any{"sku": p.SKU})
	return p, nil
}

// UpdateProduct applies a partial update.
func (s *Service) UpdateProduct(ctx context.Context, actorID, id string, patch ProductPatch) (Product, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return Product{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	for _, d := range []*decimal.Decimal{patch.Price, patch.MakingCharge, patch.TaxRate} {
		if d != nil && d.IsNegative() {
			return Product{}, fmt.Errorf("%w: amounts cannot be negative", ErrInvalidInput)
		}
	}
	p, err := s.repo.UpdateProduct(ctx, id, patch)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, actorID, "product.updated", id, nil)
	return p, nil
}

// DeleteProduct soft deletes a product so sales history keeps its reference.
func (s *Service) DeleteProduct(ctx context.Context, actorID, id string) error {
	inactive := false
	if _, err := s.repo.UpdateProduct(ctx, id, ProductPatch{IsActive: &inactive}); err != nil {
		return err
	}
	s.record(ctx, actorID, "product.deleted", id, nil)
	return nil
}

// ListVariants returns a product's variants.
func (s *Service) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListVariants(ctx, productID)
}

// CreateVariant adds a variant to a product.
func (s *Service) CreateVariant(ctx context.Context, actorID, productID string, in VariantInput) (Variant, error) {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return Variant{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.Weight.IsNegative() {
		return Variant{}, fmt.Errorf("%w: weight cannot be negative", ErrInvalidInput)
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return Variant{}, err
	}
	v, err := s.repo.InsertVariant(ctx, productID, in)
	if err != nil {
		return Variant{}, err
	}
	s.record(ctx, actorID, "variant.created", v.ID, map[string]any{"product_id": productID, "sku": v.SKU})
	return v, nil
}

// DeleteVariant soft deletes a variant.
func (s *Service) DeleteVariant(ctx context.Context, actorID, productID, variantID string) error {
	if err := s.repo.DeactivateVariant(ctx, productID, variantID); err != nil {
		return err
	}
	s.record(ctx, actorID, "variant.deleted", variantID, map[string]any{"product_id": productID})
	return nil
}

// ListCategories reads categories from the database. When the database
// fails and a local copy exists, the copy is returned marked Degraded
// unless strict is set, in which case ErrDegraded is returned.
func (s *Service) ListCategories(ctx context.Context, strict bool) (Categories, error) {
	items, err := s.repo.ListCategories(ctx)
	if err == nil {
		if items == nil {
			items = []Category{}
		}
		if s.local != nil {
			if perr := s.local.Put(categoriesCacheKey, items); perr != nil {
				s.logger.Warn("catalog: refresh local categories", slog.Any("error", perr))
			}
		}
		return Categories{Items: items}, nil
	}
	if s.local == nil || errors.Is(ctx.Err(), context.Canceled) {
		return Categories{}, fmt.Errorf("catalog: list categories: %w", err)
	}

	s.logger.Warn("catalog: categories backend failed", slog.Any("error", err))
	var cached []Category
	asOf, lerr := s.local.Get(categoriesCacheKey, &cached)
	if lerr != nil {
		if errors.Is(lerr, kvstore.ErrMissing) {
			return Categories{}, fmt.Errorf("catalog: list categories: %w", errors.Join(err, httpx.ErrUnavailable))
		}
		return Categories{}, fmt.Errorf("catalog: read local categories: %w", lerr)
	}
	if strict {
		return Categories{}, ErrDegraded
	}
	return Categories{Items: cached, Degraded: true, AsOf: asOf}, nil
}

// CreateCategory stores a category.
func (s *Service) CreateCategory(ctx context.Context, actorID string, in CategoryInput) (Category, error) {
	in, err := s.normalizeCategory(in)
	if err != nil {
		return Category{}, err
	}
	c, err := s.repo.InsertCategory(ctx, in)
	if err != nil {
		return Category{}, err
	}
	s.record(ctx, actorID, "category.created", c.ID, map[string]any{"name": c.Name})
	return c, nil
}

// UpdateCategory replaces a category.
func (s *Service) UpdateCategory(ctx context.Context, actorID, id string, in CategoryInput) (Category, error) {
	in, err := s.normalizeCategory(in)
	if err != nil {
		return Category{}, err
	}
	if in.ParentID == id {
		return Category{}, fmt.Errorf("%w: category cannot be its own parent", ErrInvalidInput)
	}
	c, err := s.repo.UpdateCategory(ctx, id, in)
	if err != nil {
		return Category{}, err
	}
	s.record(ctx, actorID, "category.updated", id, nil)
	return c, nil
}

// DeleteCategory removes a category without products.
func (s *Service) DeleteCategory(ctx context.Context, actorID, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "category.deleted", id, nil)
	return nil
}

func (s *Service) normalizeCategory(in CategoryInput) (CategoryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	attrs := make([]string, 0, len(in.Attributes))
	seen := map[string]struct{}{}
	for _, a := range in.Attributes {
		a = strings.ToLower(strings.TrimSpace(a))
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		attrs = append(attrs, a)
	}
	in.Attributes = attrs
	if err := s.validate.Struct(in); err != nil {
		return in, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return in, nil
}

func normalizeProduct(in ProductInput) ProductInput {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	in.Metal = strings.ToLower(strings.TrimSpace(in.Metal))
	in.Purity = strings.ToUpper(strings.TrimSpace(in.Purity))
	in.Barcode = strings.TrimSpace(in.Barcode)
	return in
}

func (s *Service) validateProduct(in ProductInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for name, d := range map[string]decimal.Decimal{
		"gross_weight": in.GrossWeight, "net_weight": in.NetWeight, "making_charge": in.MakingCharge,
		"price": in.Price, "tax_rate": in.TaxRate,
	} {
		if d.IsNegative() {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidInput, name)
		}
	}
	if in.NetWeight.GreaterThan(in.GrossWeight) {
		return fmt.Errorf("%w: net weight exceeds gross weight", ErrInvalidInput)
	}
	if in.TaxRate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: tax rate is a percentage", ErrInvalidInput)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, shared.ActivityEntry{ActorID: actorID, Action: action, Entity: strings.SplitN(action, ".", 2)[0], EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("catalog: activity log", slog.String("action", action), slog.Any("error", err))
	}
}
