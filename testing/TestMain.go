// Package testing holds the environment Aurum package tests start from.
package testing

import (
	"os"
	stdtesting "testing"
)

// Env is the baseline configuration for tests. Outbound services point at
// closed local ports so a misrouted call fails fast instead of reaching the
// sidecar, the payment gateway or Gotenberg.
var Env = map[string]string{
	"AURUM_TEST_MODE":  "1",
	"AURUM_ENV_FILE":   os.DevNull,
	"APP_ENV":          "test",
	"SESSION_SECRET":   "test-session-secret",
	"CSRF_SECRET":      "test-csrf-secret",
	"JWT_SECRET":       "test-jwt-secret-0123456789abcdef0123",
	"WEBHOOK_SECRET":   "test-webhook-secret",
	"SIDECAR_URL":      "http://127.0.0.1:0",
	"SIDECAR_WS_URL":   "ws://127.0.0.1:0/events",
	"PAYMENT_BASE_URL": "http://127.0.0.1:0",
	"GOTENBERG_URL":    "http://127.0.0.1:0",
}

// Main applies Env to variables the caller has not set and runs m. Packages
// call it from their own TestMain.
func Main(m *stdtesting.M) {
	for k, v := range Env {
		if _, ok := os.LookupEnv(k); !ok {
			_ = os.Setenv(k, v)
		}
	}
	os.Exit(m.Run())
}

// Setenv applies Env to a single test, overriding the process environment.
func Setenv(t stdtesting.TB) {
	t.Helper()
	for k, v := range Env {
		t.Setenv(k, v)
	}
}
