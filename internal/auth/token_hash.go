package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the SHA256 hex of a bearer token. Session records keep
// only this, never the token itself.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
