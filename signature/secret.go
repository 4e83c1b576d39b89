package signature

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SecretPrefix marks generated secrets.
const SecretPrefix = "whsec_"

// GenerateSecret returns "whsec_" plus 32 random bytes in hex (70 chars).
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("signature: generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
