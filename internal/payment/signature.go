package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload under secret, as the gateway computes it.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature over the exact raw body.
func VerifySignature(secret string, raw []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, raw)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// VerifyCheckout checks the signature the checkout widget returns to the browser,
// computed over "order_id|payment_id" with the API key secret.
func VerifyCheckout(keySecret, orderID, paymentID, signature string) bool {
	return VerifySignature(keySecret, []byte(orderID+"|"+paymentID), signature)
}
