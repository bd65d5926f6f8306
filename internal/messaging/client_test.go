package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageUsesBearerToken(t *testing.T) {
	var tokens int32
	var sent map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/aurum/s3cret/generate-token":
			atomic.AddInt32(&tokens, 1)
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case "/api/aurum/send-message":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"status":"success","response":[{"id":"true_919876543210@c.us_ABC","to":"919876543210@c.us"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Session: "aurum", SecretKey: "s3cret"})
	res, err := c.SendMessage(context.Background(), "98765 43210", "Thank you for shopping")
	require.NoError(t, err)
	assert.Equal(t, "true_919876543210@c.us_ABC", res.MessageID)
	assert.Equal(t, "919876543210@c.us", sent["phone"])
	assert.Equal(t, "Thank you for shopping", sent["message"])

	_, err = c.SendMessage(context.Background(), "9876543210", "again")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokens))

	_, err = c.SendMessage(context.Background(), "none", "x")
	require.ErrorIs(t, err, ErrInvalidPhone)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, FailureThreshold: 2, Cooldown: time.Minute})
	now := time.Now()
	c.breaker.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := c.Chats(context.Background())
		require.ErrorIs(t, err, ErrUnavailable)
	}
	_, err := c.Chats(context.Background())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.True(t, IsUnavailable(err))

	now = now.Add(2 * time.Minute)
	_, err = c.Chats(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, stateOpen, c.breaker.current())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		err := c.CloseSession(context.Background())
		require.Error(t, err)
		assert.False(t, IsUnavailable(err))
	}
	assert.Equal(t, stateClosed, c.breaker.current())
	require.NoError(t, c.Health(context.Background()))
}

func TestChatsAndMessagesDecodeSidecarShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/aurum/all-chats":
			_, _ = w.Write([]byte(`{"status":"success","response":[{"id":{"_serialized":"919876543210@c.us"},"name":"Asha","unreadCount":2,"t":1700000000}]}`))
		case "/api/aurum/get-messages/919876543210@c.us":
			assert.Equal(t, "5", r.URL.Query().Get("count"))
			_, _ = w.Write([]byte(`{"status":"success","response":[{"id":"m1","chatId":"919876543210@c.us","body":"hi","type":"chat","fromMe":true,"timestamp":1700000001,"ack":2}]}`))
		case "/api/aurum/status-session":
			_, _ = w.Write([]byte(`{"status":"QRCODE","qrcode":"data:image/png;base64,iVBORw0KGgo="}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	chats, err := c.Chats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, Chat{ID: "919876543210@c.us", Name: "Asha", UnreadCount: 2, Timestamp: 1700000000}, chats[0])

	msgs, err := c.Messages(context.Background(), "9876543210", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].FromMe)
	assert.Equal(t, 2, msgs[0].Ack)

	qr, err := c.QRCode(context.Background())
	require.NoError(t, err)
	assert.Contains(t, qr, "base64,")
}
