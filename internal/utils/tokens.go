package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRandomHex returns nBytes of crypto randomness hex-encoded.
func NewRandomHex(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32 // 256 bits by default
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
