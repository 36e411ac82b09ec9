package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of payload keyed by secret. payload must be
// the exact bytes placed on the wire.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader formats a signature for the X-Webhook-Signature header.
func SignatureHeader(secret string, payload []byte) string {
	return signaturePrefix + Sign(secret, payload)
}

// Verify accepts the signature with or without the "sha256=" prefix.
func Verify(secret string, payload []byte, signature string) bool {
	signature = strings.TrimPrefix(signature, signaturePrefix)
	expectedSignature := Sign(secret, payload)
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}
