package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenBytes is the entropy of generated tokens: 32 bytes = 256 bits.
const TokenBytes = 32

// NewToken returns a cryptographically random, URL-safe token suitable
// for session, activation and password-reset tokens.
func NewToken() (string, error) {
	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
