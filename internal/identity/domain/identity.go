package domain

import (
	"errors"
	"time"
)

// ErrPendingTokenInvariant is returned by Validate when the activation token and
// its expiry are not set together, or a token is pending on an active identity.
var ErrPendingTokenInvariant = errors.New("identity: activation token and expiry must be set together on inactive identities only")

// Identity is a registered user: credentials, activation state, and profile.
// ID is the opaque public handle; storage backends keep their own primary key.
type Identity struct {
	ID                  string
	Email               string
	PasswordHash        string
	IsActive            bool
	ActivationToken     *string
	ActivationExpiresAt *time.Time
	ResetCode           *string // owned by the password reset flow
	ResetExpiresAt      *time.Time
	Name                string
	Role                string
	Age                 int
	Occupation          string
	DefaultCurrency     string
	ActiveAccountID     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RoleUser is the role assigned at registration.
const RoleUser = "user"

// HasPendingActivation reports whether an activation token is outstanding.
func (i *Identity) HasPendingActivation() bool {
	return i.ActivationToken != nil
}

// ActivationExpired reports whether the pending token expired at or before now.
func (i *Identity) ActivationExpired(now time.Time) bool {
	return i.ActivationExpiresAt != nil && !i.ActivationExpiresAt.After(now)
}

// Validate checks the activation invariant.
func (i *Identity) Validate() error {
	if (i.ActivationToken == nil) != (i.ActivationExpiresAt == nil) {
		return ErrPendingTokenInvariant
	}
	if i.ActivationToken != nil && i.IsActive {
		return ErrPendingTokenInvariant
	}
	return nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.ActivationToken != nil {
		v := *i.ActivationToken
		c.ActivationToken = &v
	}
	if i.ActivationExpiresAt != nil {
		v := *i.ActivationExpiresAt
		c.ActivationExpiresAt = &v
	}
	if i.ResetCode != nil {
		v := *i.ResetCode
		c.ResetCode = &v
	}
	if i.ResetExpiresAt != nil {
		v := *i.ResetExpiresAt
		c.ResetExpiresAt = &v
	}
	return &c
}
