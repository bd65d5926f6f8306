package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

func serveAs(h *Handler, perms rbac.PermissionMap) http.Handler {
	router := chi.NewRouter()
	router.Route("/api/delivery-challans", h.MountRoutes)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.ContextWithIdentity(r.Context(), "u1")
		ctx = rbac.ContextWithSnapshot(ctx, &rbac.Snapshot{IdentityID: "u1", Permissions: perms})
		router.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestDispatchRouteRequiresInvoiceUpdate(t *testing.T) {
	svc, repo := newFixture(t)
	ch, err := svc.Create(context.Background(), "u1", CreateRequest{OrderID: "so-1", Lines: []LineRequest{{OrderItemID: "soi-1", Quantity: d("1")}}})
	require.NoError(t, err)
	h := NewHandler(nil, svc, rbac.Middleware{})

	rec := httptest.NewRecorder()
	serveAs(h, rbac.PermissionMap{rbac.ResourceSales: {rbac.ActionUpdate}, rbac.ResourceInvoices: {rbac.ActionRead}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/delivery-challans/"+ch.ID+"/dispatch", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "5", repo.balance("p1").String())

	rec = httptest.NewRecorder()
	serveAs(h, rbac.PermissionMap{rbac.ResourceInvoices: {rbac.ActionUpdate}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/delivery-challans/"+ch.ID+"/dispatch", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4", repo.balance("p1").String())

	rec = httptest.NewRecorder()
	serveAs(h, rbac.PermissionMap{rbac.ResourceInvoices: {rbac.ActionRead}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/delivery-challans/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
