package payment

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	payEndpoint    = "/pg/v1/pay"
	statusEndpoint = "/pg/v1/status"
)

func checksum(data, saltKey, saltIndex string) string {
	sum := sha256.Sum256([]byte(data + saltKey))
	return hex.EncodeToString(sum[:]) + "###" + saltIndex
}

// PayChecksum signs a base64 pay payload.
func PayChecksum(payload, saltKey, saltIndex string) string {
	return checksum(payload+payEndpoint, saltKey, saltIndex)
}

// StatusPath is the status endpoint path of a transaction.
func StatusPath(merchantID, txnID string) string {
	return statusEndpoint + "/" + merchantID + "/" + txnID
}

// StatusChecksum signs a status request.
func StatusChecksum(merchantID, txnID, saltKey, saltIndex string) string {
	return checksum(StatusPath(merchantID, txnID), saltKey, saltIndex)
}

// VerifyCallback checks the X-VERIFY header of a server-to-server callback
// carrying the base64 response.
func VerifyCallback(header, response, saltKey, saltIndex string) bool {
	want := checksum(response, saltKey, saltIndex)
	return subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1
}
