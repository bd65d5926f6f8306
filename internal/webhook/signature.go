package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the HMAC-SHA256 of body. The signature may
// be hex, hex with a "sha256=" prefix, or standard base64.
func Verify(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	expected := mac.Sum(nil)

	if got, err := hex.DecodeString(signature); err == nil && len(got) == sha256.Size {
		return hmac.Equal(got, expected)
	}
	if got, err := base64.StdEncoding.DecodeString(signature); err == nil {
		return hmac.Equal(got, expected)
	}
	return false
}
