package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned when an encoded hash cannot be parsed.
var ErrInvalidHash = errors.New("invalid hash encoding")

// Argon2idParams are the Argon2id cost parameters.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams returns parameters suitable for interactive login.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2idHasher implements PasswordHasher with Argon2id and PHC-style encoding:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>
type Argon2idHasher struct {
	params Argon2idParams
}

// NewArgon2idHasher returns an Argon2idHasher. Zero fields fall back to DefaultArgon2idParams.
func NewArgon2idHasher(p Argon2idParams) *Argon2idHasher {
	d := DefaultArgon2idParams()
	if p.MemoryKiB == 0 {
		p.MemoryKiB = d.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.SaltLength < 8 {
		p.SaltLength = d.SaltLength
	}
	if p.KeyLength < 16 {
		p.KeyLength = d.KeyLength
	}
	return &Argon2idHasher{params: p}
}

// Hash derives an Argon2id key from secret with a random salt and returns the encoded form.
func (h *Argon2idHasher) Hash(secret []byte) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	key := argon2.IDKey(secret, salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Compare re-derives the key with the parameters stored in hash and compares in constant time.
// Hashes whose parameters exceed twice the configured cost are refused.
func (h *Argon2idHasher) Compare(hash string, secret []byte) error {
	p, salt, want, err := decodeArgon2id(hash)
	if err != nil {
		return err
	}
	if p.MemoryKiB > h.params.MemoryKiB*2 || p.Iterations > h.params.Iterations*2 || p.Parallelism > h.params.Parallelism*2 {
		return ErrInvalidHash
	}
	got := argon2.IDKey(secret, salt, p.Iterations, p.MemoryKiB, p.Parallelism, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrHashMismatch
	}
	return nil
}

func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	return Argon2idParams{MemoryKiB: mem, Iterations: it, Parallelism: uint8(par)}, salt, key, nil
}
