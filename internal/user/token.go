package user

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes sizes the access token at 256 bits of entropy.
const tokenBytes = 32

// GenerateToken creates a cryptographically random, URL-safe access
// token. The raw token is handed to the app and stored verbatim; it is
// the user's sole credential on the message buses.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
