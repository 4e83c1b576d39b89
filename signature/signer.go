// Package signature signs webhook bodies with HMAC-SHA256.
//
// The signature header value is "sha256=" followed by the lowercase hex
// digest of the exact request body, keyed by the subscription secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Scheme is the prefix of every signature value.
const Scheme = "sha256="

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	return Scheme + hex.EncodeToString(digest(secret, body))
}

// Verify reports whether header is a valid signature of body under secret.
// The comparison is constant time.
func Verify(secret string, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, Scheme)
	if !ok {
		return false
	}

	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	return hmac.Equal(got, digest(secret, body))
}

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
