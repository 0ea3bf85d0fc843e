package repository

import (
	"context"
	"errors"
	"time"

	"credential-lifecycle/internal/identity/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("identity: email already registered")

// Repository defines persistence for identities. Getters return (nil, nil) when
// no record matches; errors are reserved for storage failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	// GetByActivationToken matches the token regardless of its expiry.
	GetByActivationToken(ctx context.Context, token string) (*domain.Identity, error)
	// ConsumeActivationToken atomically activates the identity holding token if its
	// expiry is after now, clearing token and expiry. Returns the activated identity,
	// or nil when nothing matched.
	ConsumeActivationToken(ctx context.Context, token string, now time.Time) (*domain.Identity, error)
	// ForceActivate activates id and clears its token only while it still holds token.
	ForceActivate(ctx context.Context, id, token string, now time.Time) (bool, error)
	// SetActivationToken replaces the pending token of id while it is inactive.
	SetActivationToken(ctx context.Context, id, token string, expiresAt, now time.Time) (bool, error)
	SetActiveAccount(ctx context.Context, id, accountID string, now time.Time) error
	Create(ctx context.Context, i *domain.Identity) error
	Delete(ctx context.Context, id string) error
}
