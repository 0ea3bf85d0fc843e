package repository

import (
	"context"
	"database/sql"
	"errors"

	"credential-lifecycle/internal/session/domain"
)

// PostgresRepository stores sessions in the sessions table keyed by (user_id, device_id).
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUserAndDevice returns the session, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, device_id, jti, refresh_hash, revoked, expires_at, last_used_at, created_at
		FROM sessions WHERE user_id = $1 AND device_id = $2`, userID, deviceID,
	).Scan(&s.UserID, &s.DeviceID, &s.JTI, &s.RefreshHash, &s.Revoked, &s.ExpiresAt, &s.LastUsedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastUsedAt = s.LastUsedAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// Upsert inserts the session or overwrites every mutable column of the existing one.
func (r *PostgresRepository) Upsert(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, device_id, jti, refresh_hash, revoked, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			jti = EXCLUDED.jti,
			refresh_hash = EXCLUDED.refresh_hash,
			revoked = EXCLUDED.revoked,
			expires_at = EXCLUDED.expires_at,
			last_used_at = EXCLUDED.last_used_at`,
		s.UserID, s.DeviceID, s.JTI, s.RefreshHash, s.Revoked, s.ExpiresAt, s.LastUsedAt, s.CreatedAt)
	return err
}

// Rotate swaps in the next refresh state with a conditional UPDATE on the previous hash.
func (r *PostgresRepository) Rotate(ctx context.Context, prevHash string, next *domain.Session) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET jti = $3, refresh_hash = $4, expires_at = $5, last_used_at = $6, revoked = FALSE
		WHERE user_id = $1 AND device_id = $2 AND refresh_hash = $7 AND NOT revoked`,
		next.UserID, next.DeviceID, next.JTI, next.RefreshHash, next.ExpiresAt, next.LastUsedAt, prevHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Revoke marks the session revoked. Returns an error only if the update fails.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	return err
}
