package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSessionToken derives the value stored in the session ledger. The raw
// bearer token never touches the database; the pepper keeps a leaked ledger
// from being replayable.
func HashSessionToken(token, pepper string) string {
	sum := sha256.Sum256([]byte(token + pepper))
	return hex.EncodeToString(sum[:])
}

// NewActionToken returns an opaque random token for email verification and
// password reset links.
func NewActionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate action token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
