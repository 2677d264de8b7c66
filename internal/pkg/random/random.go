// Package random produces secrets from crypto/rand.
package random

import (
	"crypto/rand"
	"encoding/hex"
)

// Hex returns n random bytes hex-encoded (2n characters).
func Hex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
