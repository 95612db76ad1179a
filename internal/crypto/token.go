package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// tokenLength is 16 bytes = 128 bits of entropy per share token.
const tokenLength = 16

// GenerateToken returns a new opaque share token: 128 random bits,
// URL-safe base64 without padding.
func GenerateToken() string {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
