package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"credential-lifecycle/internal/identity/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

const userColumns = `id::text, email, password_hash, is_active, activation_token, activation_expires_at,
	reset_code, reset_expires_at, name, role, age, occupation, default_currency, active_account_id,
	created_at, updated_at`

// PostgresRepository stores identities in the users table. The public ID is a
// UUID column distinct from the BIGSERIAL primary key.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the identity for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByActivationToken returns the identity holding token, expired or not.
func (r *PostgresRepository) GetByActivationToken(ctx context.Context, token string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE activation_token = $1`, token)
}

// ConsumeActivationToken activates the holder of an unexpired token in a single UPDATE.
func (r *PostgresRepository) ConsumeActivationToken(ctx context.Context, token string, now time.Time) (*domain.Identity, error) {
	return r.getOne(ctx, `
		UPDATE users
		SET is_active = TRUE, activation_token = NULL, activation_expires_at = NULL, updated_at = $2
		WHERE activation_token = $1 AND activation_expires_at > $2
		RETURNING `+userColumns, token, now)
}

// ForceActivate activates id if it still holds token.
func (r *PostgresRepository) ForceActivate(ctx context.Context, id, token string, now time.Time) (bool, error) {
	return r.execOne(ctx, `
		UPDATE users
		SET is_active = TRUE, activation_token = NULL, activation_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND activation_token = $2`, id, token, now)
}

// SetActivationToken overwrites the pending token of an inactive identity.
func (r *PostgresRepository) SetActivationToken(ctx context.Context, id, token string, expiresAt, now time.Time) (bool, error) {
	return r.execOne(ctx, `
		UPDATE users
		SET activation_token = $2, activation_expires_at = $3, updated_at = $4
		WHERE id = $1 AND NOT is_active`, id, token, expiresAt, now)
}

// SetActiveAccount records the account the identity acts on by default.
func (r *PostgresRepository) SetActiveAccount(ctx context.Context, id, accountID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET active_account_id = $2, updated_at = $3 WHERE id = $1`, id, accountID, now)
	return err
}

// Create persists the identity. The identity must have ID set. A unique
// violation on email is reported as ErrDuplicateEmail.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	if err := i.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, is_active, activation_token, activation_expires_at,
			name, role, age, occupation, default_currency, active_account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		i.ID, i.Email, i.PasswordHash, i.IsActive, strPtrToNull(i.ActivationToken), timePtrToNull(i.ActivationExpiresAt),
		i.Name, i.Role, i.Age, i.Occupation, i.DefaultCurrency, i.ActiveAccountID, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "users_email_key" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// Delete removes the identity. Deleting a missing identity is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Identity, error) {
	i, err := scanIdentity(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return i, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanIdentity(row *sql.Row) (*domain.Identity, error) {
	var (
		i                 domain.Identity
		token, resetCode  sql.NullString
		tokenExp, resetEx sql.NullTime
	)
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.IsActive, &token, &tokenExp,
		&resetCode, &resetEx, &i.Name, &i.Role, &i.Age, &i.Occupation, &i.DefaultCurrency, &i.ActiveAccountID,
		&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.ActivationToken = nullToStrPtr(token)
	i.ActivationExpiresAt = nullTimeToPtr(tokenExp)
	i.ResetCode = nullToStrPtr(resetCode)
	i.ResetExpiresAt = nullTimeToPtr(resetEx)
	return &i, nil
}

func strPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullToStrPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func timePtrToNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}
