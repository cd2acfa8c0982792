package util

import (
	"crypto/sha256"
	"fmt"
)

// HashBytes returns the SHA-256 hex digest of data. Identical payloads map to
// the same digest; dedup and the content-addressed image store rely on that.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// HashText hashes the UTF-8 bytes of text.
func HashText(text string) string {
	return HashBytes([]byte(text))
}
