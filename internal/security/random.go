package security

import (
	"crypto/rand"
	"encoding/hex"
)

// ActivationTokenBytes is the entropy of an activation token (256 bits).
const ActivationTokenBytes = 32

// NewActivationToken returns a hex-encoded, cryptographically random single-use token.
func NewActivationToken() (string, error) {
	b := make([]byte, ActivationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
