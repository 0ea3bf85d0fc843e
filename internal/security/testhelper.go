package security

import "time"

// Test secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
)

// NewTestTokenCodec returns a TokenCodec using the embedded test secrets.
// For unit tests only. Callers must not use in production.
func NewTestTokenCodec() *TokenCodec {
	c, err := NewTokenCodec(TokenConfig{
		Issuer:        "test-issuer",
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	if err != nil {
		panic(err)
	}
	return c
}
