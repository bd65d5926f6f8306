package invoicing

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
	router.Route("/api/invoices", h.MountRoutes)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.ContextWithIdentity(r.Context(), "u1")
		ctx = rbac.ContextWithSnapshot(ctx, &rbac.Snapshot{IdentityID: "u1", Permissions: perms})
		router.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestPDFRouteRequiresPrint(t *testing.T) {
	svc, _, _ := newTestService()
	inv, err := svc.Create(context.Background(), "u1", ringRequest())
	require.NoError(t, err)
	h := NewHandler(nil, svc, rbac.Middleware{})

	rec := httptest.NewRecorder()
	serveAs(h, rbac.PermissionMap{rbac.ResourceInvoices: {rbac.ActionRead, rbac.ActionPrint}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/"+inv.ID+"/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), inv.Number+".pdf")
	assert.Equal(t, "%PDF", rec.Body.String())

	rec = httptest.NewRecorder()
	serveAs(h, rbac.PermissionMap{rbac.ResourceInvoices: {rbac.ActionRead}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/"+inv.ID+"/pdf", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	serveAs(h, rbac.PermissionMap{rbac.ResourceInvoices: {rbac.ActionRead}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
