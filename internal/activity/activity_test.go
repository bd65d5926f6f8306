package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

type stubReader struct {
	got Filters
}

func (s *stubReader) List(_ context.Context, f Filters) ([]Entry, int, error) {
	s.got = f
	return []Entry{{ID: 1, Action: "sale.created", Entity: "sale", EntityID: "s1", OccurredAt: time.Now()}}, 1, nil
}

type staticSource struct{}

func (staticSource) GetIdentity(_ context.Context, id string) (rbac.Identity, error) {
	return rbac.Identity{ID: id, IsActive: true}, nil
}

func (staticSource) ListAssignments(_ context.Context, id string) ([]rbac.Assignment, error) {
	return []rbac.Assignment{{IdentityID: id, RoleID: "viewer"}}, nil
}

func (staticSource) GetRolesByIDs(_ context.Context, _ []string) ([]rbac.Role, error) {
	return []rbac.Role{{ID: "viewer", Name: "Viewer", Permissions: rbac.PermissionMap{rbac.AnyResource: {rbac.ActionRead}}}}, nil
}

func TestListParsesFilters(t *testing.T) {
	reader := &stubReader{}
	h := NewHandler(reader, rbac.Middleware{Resolver: rbac.NewResolver(staticSource{}, nil)})
	r := chi.NewRouter()
	r.Route("/api/activity", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/activity?entity=sale&from=2026-01-01&to=2026-01-31&per_page=10&page=2", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "sale", reader.got.Entity)
	require.Equal(t, 10, reader.got.Offset)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), reader.got.To)

	var body shared.Page[Entry]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, 1, body.Pagination.Total)
}
