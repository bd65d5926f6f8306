package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum/internal/shared"
	"github.com/aurum-erp/aurum/internal/webhook"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.DiscardHandler)
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMin: 1000, AppRequestTimeout: 5 * time.Second},
		SessionManager: shared.NewSessionManager(client, "aurum_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager("csrf-secret"),
		WebhookHandler: webhook.NewHandler("hook-secret", nil, nil, nil, nil, logger),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhooksSkipCSRF(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", strings.NewReader(`{"external_id":"1"}`))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	// The signature check answers, not the CSRF guard.
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieMutationsRequireCSRF(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFExempt(t *testing.T) {
	cases := []struct {
		method string
		path   string
		bearer bool
		want   bool
	}{
		{http.MethodGet, "/api/sales", false, true},
		{http.MethodOptions, "/api/sales", false, true},
		{http.MethodPost, "/api/sales", false, false},
		{http.MethodPost, "/api/sales", true, true},
		{http.MethodPost, "/auth/login", false, false},
		{http.MethodPost, "/auth/token", false, true},
		{http.MethodPost, "/webhooks/inventory", false, true},
		{http.MethodPost, "/webhooks/payments/callback", false, true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.bearer {
			req.Header.Set("Authorization", "Bearer abc.def.ghi")
		}
		require.Equal(t, tc.want, csrfExempt(req), "%s %s bearer=%v", tc.method, tc.path, tc.bearer)
	}
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
