// internal/lobby/id.go
package lobby

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	idCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	idLength  = 6
)

var idAlphabetSize = big.NewInt(int64(len(idCharset)))

// NewID returns a random six character base62 lobby id.
func NewID() (string, error) {
	buf := make([]byte, idLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, idAlphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate lobby id: %w", err)
		}
		buf[i] = idCharset[n.Int64()]
	}
	return string(buf), nil
}

// ValidID reports whether s has the shape of a lobby id.
func ValidID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
