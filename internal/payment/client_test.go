package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientInitiateSignsPayload(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pg/v1/pay", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, PayChecksum(body["request"], "salt", "1"), r.Header.Get("X-VERIFY"))
		raw, err := base64.StdEncoding.DecodeString(body["request"])
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &payload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","message":"Payment initiated",
"data":{"instrumentResponse":{"type":"PAY_PAGE","redirectInfo":{"url":"https://pay.test/page","method":"GET"}}}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{MerchantID: "M1", SaltKey: "salt", SaltIndex: "1", BaseURL: srv.URL, CallbackURL: "https://shop.test/webhooks/payments/callback"})
	res, err := c.Initiate(context.Background(), PayRequest{TransactionID: "T1", UserID: "u1", Amount: 125050, Phone: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/page", res.RedirectURL)
	assert.Equal(t, "M1", payload["merchantId"])
	assert.Equal(t, "T1", payload["merchantTransactionId"])
	assert.EqualValues(t, 125050, payload["amount"])
	assert.Equal(t, "9876543210", payload["mobileNumber"])
	assert.Equal(t, "https://shop.test/webhooks/payments/callback", payload["callbackUrl"])
	assert.Equal(t, map[string]any{"type": "PAY_PAGE"}, payload["paymentInstrument"])
}

func TestClientInitiateSurfacesGatewayMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"code":"KEY_NOT_CONFIGURED","message":"Key not found for the merchant"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{MerchantID: "M1", SaltKey: "salt", SaltIndex: "1", BaseURL: srv.URL})
	res, err := c.Initiate(context.Background(), PayRequest{TransactionID: "T1", Amount: 100})
	require.Error(t, err)
	assert.Equal(t, "KEY_NOT_CONFIGURED", res.Code)
	assert.Equal(t, "Key not found for the merchant", res.Message)
}

func TestClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/pg/v1/status/M1/T1", r.URL.Path)
		assert.Equal(t, StatusChecksum("M1", "T1", "salt", "1"), r.Header.Get("X-VERIFY"))
		assert.Equal(t, "M1", r.Header.Get("X-MERCHANT-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_SUCCESS","message":"Your payment is successful.",
"data":{"merchantTransactionId":"T1","amount":125050,"state":"COMPLETED"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{MerchantID: "M1", SaltKey: "salt", SaltIndex: "1", BaseURL: srv.URL})
	res, err := c.Status(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.Outcome())
	assert.Equal(t, "COMPLETED", res.State)
	assert.Equal(t, int64(125050), res.Amount)

	assert.Equal(t, StatePending, StatusResult{Code: "PAYMENT_PENDING"}.Outcome())
	assert.Equal(t, StateFailed, StatusResult{Code: "PAYMENT_ERROR"}.Outcome())
}

func TestClientStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{MerchantID: "M1", SaltKey: "salt", SaltIndex: "1", BaseURL: srv.URL})
	_, err := c.Status(context.Background(), "T1")
	require.Error(t, err)
}
