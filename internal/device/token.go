package device

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const tokenPrefix = "dvc_"

// MintToken generates a new bearer token from a cryptographically secure
// source and returns it together with the hash that gets persisted. The raw
// token leaves this package exactly once, in the approval response.
func MintToken() (token string, tokenHash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate token material: %w", err)
	}
	token = tokenPrefix + hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken computes the storage/lookup hash of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
