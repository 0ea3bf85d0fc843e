package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrHashMismatch is returned by Compare when the secret does not match the stored hash.
var ErrHashMismatch = errors.New("hash mismatch")

// PasswordHasher is the one-way hash capability used for stored passwords and for
// refresh-token fingerprints. Compare returns nil on match and ErrHashMismatch on mismatch;
// any other error means the stored hash is unusable.
type PasswordHasher interface {
	Hash(secret []byte) (string, error)
	Compare(hash string, secret []byte) error
}

// Hasher hashes and verifies secrets using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of secret. bcrypt only accepts 72 bytes; longer
// secrets (e.g. JWTs) must be fingerprinted first, see RefreshFingerprint.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies secret against the stored hash using constant-time
// comparison. Returns nil if they match and ErrHashMismatch if they do not.
func (h *Hasher) Compare(hash string, secret []byte) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), secret)
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrHashMismatch
	}
	return err
}
