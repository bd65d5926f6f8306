package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/platform/httpx"
	"github.com/aurum-erp/aurum/internal/platform/kvstore"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

func openLocal(t *testing.T) *kvstore.Store {
	t.Helper()
	store, err := kvstore.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, "u1", ProductInput{SKU: "r-1", Name: "Ring", Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateProduct(ctx, "u1", ProductInput{SKU: "r-1", Name: "Ring", GrossWeight: decimal.NewFromInt(2), NetWeight: decimal.NewFromInt(3)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateProduct(ctx, "u1", ProductInput{SKU: "r-1", Name: "Ring", Metal: "copper"})
	require.ErrorIs(t, err, ErrInvalidInput)

	p, err := svc.CreateProduct(ctx, "u1", ProductInput{SKU: " r-1 ", Name: "Ring", Metal: "Gold", Purity: "22k", Price: decimal.RequireFromString("45999.50")})
	require.NoError(t, err)
	require.Equal(t, "R-1", p.SKU)
	require.Equal(t, "gold", p.Metal)

	_, err = svc.CreateProduct(ctx, "u1", ProductInput{SKU: "R-1", Name: "Other"})
	require.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestDeleteProductIsSoft(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, "u1", ProductInput{SKU: "CHAIN-1", Name: "Chain"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, "u1", p.ID))
	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestCategoriesFallBackToLocalCopy(t *testing.T) {
	repo := newMemoryRepo()
	repo.categories = []Category{{ID: "c1", Name: "Rings", Attributes: []string{"size"}}}
	svc := NewService(repo, openLocal(t), nil, nil)
	ctx := context.Background()

	fresh, err := svc.ListCategories(ctx, false)
	require.NoError(t, err)
	require.False(t, fresh.Degraded)
	require.Len(t, fresh.Items, 1)

	repo.categoriesErr = errors.New("connection refused")
	stale, err := svc.ListCategories(ctx, false)
	require.NoError(t, err)
	require.True(t, stale.Degraded)
	require.Equal(t, fresh.Items, stale.Items)
	require.False(t, stale.AsOf.IsZero())

	_, err = svc.ListCategories(ctx, true)
	require.ErrorIs(t, err, ErrDegraded)
	require.ErrorIs(t, err, httpx.ErrUnavailable)
}

func TestCategoriesWithoutLocalCopyFail(t *testing.T) {
	repo := newMemoryRepo()
	repo.categoriesErr = errors.New("connection refused")
	svc := NewService(repo, openLocal(t), nil, nil)

	_, err := svc.ListCategories(context.Background(), false)
	require.ErrorIs(t, err, httpx.ErrUnavailable)
}

type viewerSource struct{}

func (viewerSource) GetIdentity(_ context.Context, id string) (rbac.Identity, error) {
	return rbac.Identity{ID: id, IsActive: true}, nil
}

func (viewerSource) ListAssignments(_ context.Context, id string) ([]rbac.Assignment, error) {
	return []rbac.Assignment{{IdentityID: id, RoleID: "viewer"}}, nil
}

func (viewerSource) GetRolesByIDs(_ context.Context, _ []string) ([]rbac.Role, error) {
	return []rbac.Role{{ID: "viewer", Name: "Viewer", Permissions: rbac.PermissionMap{rbac.AnyResource: {rbac.ActionRead}}}}, nil
}

func TestCategoriesHandlerFlagsDegradedResponses(t *testing.T) {
	repo := newMemoryRepo()
	repo.categories = []Category{{ID: "c1", Name: "Bangles"}}
	svc := NewService(repo, openLocal(t), nil, nil)
	h := NewHandler(nil, svc, NewImporter(svc, repo, nil), rbac.Middleware{Resolver: rbac.NewResolver(viewerSource{}, nil)})
	router := chi.NewRouter()
	router.Route("/api/categories", h.MountCategoryRoutes)

	get := func(url string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(DegradedHeader))

	repo.categoriesErr = errors.New("timeout")
	rec = get("/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get(DegradedHeader))
	require.Contains(t, rec.Body.String(), `"degraded":true`)

	rec = get("/api/categories?strict=1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
