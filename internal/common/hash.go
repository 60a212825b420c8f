package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HashEmail normalises an email address (trimmed, lowercased) and hashes it.
// An empty address hashes to the empty string.
func HashEmail(email string) string {
	normalised := strings.ToLower(strings.TrimSpace(email))
	if normalised == "" {
		return ""
	}
	return Sha256Hex(normalised)
}
