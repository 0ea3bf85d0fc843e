package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// HashRefreshToken returns a SHA-256 hash of the refresh token string, hex-encoded.
// A signed refresh token is longer than bcrypt's 72-byte input limit, so the
// PasswordHasher is always applied to this digest rather than to the raw token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// RefreshFingerprint returns the value stored in a session's refresh hash:
// the hasher's one-way hash of the token digest.
func RefreshFingerprint(h PasswordHasher, token string) (string, error) {
	return h.Hash([]byte(HashRefreshToken(token)))
}

// RefreshFingerprintMatches reports whether token matches the stored fingerprint.
// Returns (false, nil) on mismatch and a non-nil error only when the stored
// fingerprint is unreadable.
func RefreshFingerprintMatches(h PasswordHasher, fingerprint, token string) (bool, error) {
	err := h.Compare(fingerprint, []byte(HashRefreshToken(token)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrHashMismatch):
		return false, nil
	default:
		return false, err
	}
}
