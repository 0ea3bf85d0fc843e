package domain

import "time"

// Session binds a (user, device) pair to the current refresh token. It is the
// sole source of truth for refresh validity.
type Session struct {
	UserID      string
	DeviceID    string
	JTI         string // token family of the current pair
	RefreshHash string // PasswordHasher hash of the current refresh token's digest
	Revoked     bool
	ExpiresAt   time.Time
	LastUsedAt  time.Time
	CreatedAt   time.Time
}

// Expired reports whether the session expired before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// Rotated returns the next value of s after a successful refresh.
func (s Session) Rotated(jti, refreshHash string, expiresAt, now time.Time) *Session {
	s.JTI = jti
	s.RefreshHash = refreshHash
	s.ExpiresAt = expiresAt
	s.LastUsedAt = now
	s.Revoked = false
	return &s
}
