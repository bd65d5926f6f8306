package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

func serveAs(h *Handler, perms rbac.PermissionMap) http.Handler {
	router := chi.NewRouter()
	router.Route("/api/payments", h.MountRoutes)
	router.Route("/webhooks/payments", h.MountCallback)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.ContextWithIdentity(r.Context(), "u1")
		ctx = rbac.ContextWithSnapshot(ctx, &rbac.Snapshot{IdentityID: "u1", Permissions: perms})
		router.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestPaymentRoutes(t *testing.T) {
	f := newFixture()
	h := NewHandler(nil, f.svc, rbac.Middleware{})
	cashier := rbac.PermissionMap{rbac.ResourceSales: {rbac.ActionCreate, rbac.ActionRead}}
	viewer := rbac.PermissionMap{rbac.ResourceSales: {rbac.ActionRead}}
	body := `{"reference":"SAL-000001","amount":"499.99"}`

	rec := httptest.NewRecorder()
	serveAs(h, viewer).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body)))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	serveAs(h, cashier).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, StatePending, sess.State)

	rec = httptest.NewRecorder()
	serveAs(h, viewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments/"+sess.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	serveAs(h, cashier).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/payments/"+sess.ID+"/retry", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	serveAs(h, viewer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentCallbackVerifiesChecksum(t *testing.T) {
	f := newFixture()
	sess := pendingSession(t, f)
	h := NewHandler(nil, f.svc, rbac.Middleware{})
	header, body := callbackFor(t, "PAYMENT_SUCCESS", sess.TransactionID, sess.Paise())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/callback", bytes.NewReader(body))
	req.Header.Set("X-VERIFY", "deadbeef###1")
	rec := httptest.NewRecorder()
	serveAs(h, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payments/callback", bytes.NewReader(body))
	req.Header.Set("X-VERIFY", header)
	rec = httptest.NewRecorder()
	serveAs(h, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.svc.Get(req.Context(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, got.State)
}
