package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyAcceptsEncodings(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"external_order_id":"SHOP-1"}`)
	sig := Sign(secret, body)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	b64 := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, Verify(secret, body, sig))
	assert.True(t, Verify(secret, body, "sha256="+sig))
	assert.True(t, Verify(secret, body, " "+sig+" "))
	assert.True(t, Verify(secret, body, b64))
}

func TestVerifyRejectsTampering(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"external_order_id":"SHOP-1","total":"100"}`)
	sig := Sign(secret, body)

	assert.False(t, Verify(secret, []byte(`{"external_order_id":"SHOP-1","total":"1"}`), sig))
	assert.False(t, Verify([]byte("other"), body, sig))
	assert.False(t, Verify(secret, body, ""))
	assert.False(t, Verify(secret, body, "sha256="))
	assert.False(t, Verify(secret, body, "not-a-signature"))
	assert.False(t, Verify(nil, body, Sign(nil, body)))
}
