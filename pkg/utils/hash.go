package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashText returns the hex sha256 of the input after trimming surrounding
// whitespace, so cosmetically different copies of the same text collapse to
// one identity.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first n hex characters of the sha256 of the input.
func ShortHash(text string, n int) string {
	h := HashText(text)
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}
