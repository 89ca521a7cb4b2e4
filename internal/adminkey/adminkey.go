// Package adminkey hashes and verifies the optional admin API key. Storing
// a bcrypt hash in the config file keeps the cleartext key out of it.
package adminkey

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = bcrypt.DefaultCost

// Hash generates a bcrypt hash for an admin API key.
func Hash(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

// Check compares a presented key with a stored bcrypt hash.
func Check(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
