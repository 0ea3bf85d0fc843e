package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed, expired,
	// issued by someone else, or of the wrong kind. Callers never learn which.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenConfig is returned by NewTokenCodec for unusable secrets or TTLs.
	ErrTokenConfig = errors.New("invalid token configuration")
)

// TokenKind discriminates access and refresh tokens. It is carried in the typ claim.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenConfig holds per-kind secrets and TTLs. Each kind is signed with its own secret.
type TokenConfig struct {
	Issuer        string
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims is the claim set of both token kinds. Access tokens carry the profile
// fields; refresh tokens carry only sub, jti and device_id.
type Claims struct {
	jwt.RegisteredClaims
	Type      TokenKind `json:"typ"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	DeviceID  string    `json:"device_id"`
}

// TokenCodec issues and verifies HS256 JWTs.
type TokenCodec struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenCodec validates cfg and returns a codec. Secrets must be non-empty and
// distinct, TTLs positive.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.Join(ErrTokenConfig, errors.New("secrets must be set"))
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.Join(ErrTokenConfig, errors.New("access and refresh secrets must differ"))
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.Join(ErrTokenConfig, errors.New("ttls must be positive"))
	}
	return &TokenCodec{cfg: cfg, now: time.Now}, nil
}

// WithClock returns a copy of the codec that reads time from now. Used by tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL returns the lifetime of tokens of the given kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	if kind == KindRefresh {
		return c.cfg.RefreshTTL
	}
	return c.cfg.AccessTTL
}

func (c *TokenCodec) secret(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return c.cfg.AccessSecret, nil
	case KindRefresh:
		return c.cfg.RefreshSecret, nil
	default:
		return nil, ErrInvalidToken
	}
}

// NewJTI returns a new token-family identifier. Lexically sortable by issue time.
func NewJTI() string {
	return ulid.Make().String()
}

// Issue signs claims as a token of the given kind. typ, iss, iat and exp are
// always set by the codec; jti is generated when claims.ID is empty.
func (c *TokenCodec) Issue(kind TokenKind, claims Claims) (token string, expiresAt time.Time, err error) {
	key, err := c.secret(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC()
	expiresAt = now.Add(c.TTL(kind))
	if claims.ID == "" {
		claims.ID = NewJTI()
	}
	claims.Type = kind
	claims.Issuer = c.cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses token with the secret of kind and checks signature, expiry,
// issuer and typ. Every failure is reported as ErrInvalidToken.
func (c *TokenCodec) Verify(kind TokenKind, token string) (*Claims, error) {
	key, err := c.secret(kind)
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
