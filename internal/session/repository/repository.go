package repository

import (
	"context"

	"credential-lifecycle/internal/session/domain"
)

// Repository defines persistence for device sessions, one per (userID, deviceID).
// GetByUserAndDevice returns (nil, nil) when no session exists.
type Repository interface {
	GetByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error)
	// Upsert creates or replaces the session for (s.UserID, s.DeviceID). CreatedAt of an
	// existing session is preserved.
	Upsert(ctx context.Context, s *domain.Session) error
	// Rotate replaces jti, refresh hash, expiry and last-used of next's session only if the
	// stored refresh hash still equals prevHash and the session is not revoked. Reports
	// whether the swap happened.
	Rotate(ctx context.Context, prevHash string, next *domain.Session) (bool, error)
	// Revoke marks the session revoked. A missing session is not an error.
	Revoke(ctx context.Context, userID, deviceID string) error
}
