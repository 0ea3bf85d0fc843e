package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"credential-lifecycle/internal/account"
	"credential-lifecycle/internal/audit"
	identitydomain "credential-lifecycle/internal/identity/domain"
	identityrepo "credential-lifecycle/internal/identity/repository"
	"credential-lifecycle/internal/mailer"
	"credential-lifecycle/internal/metrics"
	"credential-lifecycle/internal/platform/logging"
	"credential-lifecycle/internal/security"
	sessiondomain "credential-lifecycle/internal/session/domain"
)

// DefaultDeviceID is the session slot used when a client sends no device id.
// Device-less clients of the same user share it.
const DefaultDeviceID = "default"

const (
	defaultActivationTTL = 30 * time.Minute
	defaultCurrency      = "USD"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IdentityRepo is the identity store needed by the auth service.
type IdentityRepo interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*identitydomain.Identity, error)
	GetByActivationToken(ctx context.Context, token string) (*identitydomain.Identity, error)
	ConsumeActivationToken(ctx context.Context, token string, now time.Time) (*identitydomain.Identity, error)
	ForceActivate(ctx context.Context, id, token string, now time.Time) (bool, error)
	SetActivationToken(ctx context.Context, id, token string, expiresAt, now time.Time) (bool, error)
	SetActiveAccount(ctx context.Context, id, accountID string, now time.Time) error
	Create(ctx context.Context, i *identitydomain.Identity) error
	Delete(ctx context.Context, id string) error
}

// SessionRepo is the session store needed by the auth service.
type SessionRepo interface {
	GetByUserAndDevice(ctx context.Context, userID, deviceID string) (*sessiondomain.Session, error)
	Upsert(ctx context.Context, s *sessiondomain.Session) error
	Rotate(ctx context.Context, prevHash string, next *sessiondomain.Session) (bool, error)
	Revoke(ctx context.Context, userID, deviceID string) error
}

// Config holds service-level settings.
type Config struct {
	// ActivationTTL is the lifetime of an activation token. Zero means 30 minutes.
	ActivationTTL time.Duration
	// DefaultCurrency is used when registration omits one. Empty means USD.
	DefaultCurrency string
}

// Deps are the collaborators of AuthService. Mailer, Accounts, Audit, Metrics and
// Logger are optional.
type Deps struct {
	Identities IdentityRepo
	Sessions   SessionRepo
	Hasher     security.PasswordHasher
	Tokens     *security.TokenCodec
	Mailer     mailer.Sender
	Accounts   account.Provisioner
	Audit      audit.AuditLogger
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
	Age             int
	Occupation      string
	DefaultCurrency string
}

// RegisterResult is returned by Register. The account must be activated before Login.
type RegisterResult struct {
	UserID string
}

// TokenPair is an access/refresh pair sharing one JTI.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	JTI              string
}

// UserSummary is the non-secret view of an identity returned on login.
type UserSummary struct {
	ID              string
	Email           string
	Name            string
	Role            string
	ActiveAccountID string
}

// LoginResult is returned by Login.
type LoginResult struct {
	Tokens TokenPair
	User   UserSummary
}

// AuthService implements registration, login, refresh rotation, logout and activation.
type AuthService struct {
	identities IdentityRepo
	sessions   SessionRepo
	hasher     security.PasswordHasher
	tokens     *security.TokenCodec
	mailer     mailer.Sender
	accounts   account.Provisioner
	audit      audit.AuditLogger
	metrics    *metrics.Metrics
	log        *slog.Logger

	activationTTL   time.Duration
	defaultCurrency string
	now             func() time.Time
	// mailDone is called after each async activation send; tests hook it.
	mailDone func(error)
}

// NewAuthService returns an AuthService. Identities, Sessions, Hasher and Tokens are required.
func NewAuthService(deps Deps, cfg Config) (*AuthService, error) {
	if deps.Identities == nil || deps.Sessions == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("auth service: identities, sessions, hasher and tokens are required")
	}
	ttl := cfg.ActivationTTL
	if ttl <= 0 {
		ttl = defaultActivationTTL
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if currency == "" {
		currency = defaultCurrency
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{
		identities:      deps.Identities,
		sessions:        deps.Sessions,
		hasher:          deps.Hasher,
		tokens:          deps.Tokens,
		mailer:          deps.Mailer,
		accounts:        deps.Accounts,
		audit:           auditLogger,
		metrics:         deps.Metrics,
		log:             logging.OrDefault(deps.Logger),
		activationTTL:   ttl,
		defaultCurrency: currency,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register creates an inactive identity, provisions its default account and sends
// the activation email. If provisioning fails the identity is deleted again.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	ctx, span := startSpan(ctx, "Register")
	res, err := s.register(ctx, in)
	endSpan(span, err)
	s.metrics.Register(outcome(err))
	return res, err
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, validationError("password is required")
	}
	if in.Age < 0 {
		return nil, validationError("age must not be negative")
	}
	currency := s.defaultCurrency
	if strings.TrimSpace(in.DefaultCurrency) != "" {
		c, ok := account.NormalizeCurrency(in.DefaultCurrency)
		if !ok {
			return nil, validationError("default currency must be a three-letter code")
		}
		currency = c
	}
	existing, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	hash, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := security.NewActivationToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.activationTTL)
	ident := &identitydomain.Identity{
		ID:                  newID(),
		Email:               email,
		PasswordHash:        hash,
		IsActive:            false,
		ActivationToken:     &token,
		ActivationExpiresAt: &expiresAt,
		Name:                strings.TrimSpace(in.Name),
		Role:                identitydomain.RoleUser,
		Age:                 in.Age,
		Occupation:          strings.TrimSpace(in.Occupation),
		DefaultCurrency:     currency,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.identities.Create(ctx, ident); err != nil {
		if errors.Is(err, identityrepo.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	if s.accounts != nil {
		accountID, err := s.accounts.ProvisionDefault(ctx, ident.ID, currency)
		if err == nil {
			err = s.identities.SetActiveAccount(ctx, ident.ID, accountID, now)
		}
		if err != nil {
			s.compensate(ident.ID, err)
			return nil, fmt.Errorf("provision default account: %w", err)
		}
	}

	mailer.SendAsync(s.mailer, s.log, email, token, ident.Name, s.mailDone)
	s.audit.LogEvent(ctx, audit.ActionRegistered, ident.ID, "", metrics.OutcomeSuccess, nil)
	return &RegisterResult{UserID: ident.ID}, nil
}

// compensate deletes a half-registered identity. It runs on a detached context so a
// cancelled request still cleans up.
func (s *AuthService) compensate(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.identities.Delete(ctx, id); err != nil {
		s.log.Error("auth: compensation delete failed", "user_id", id, "cause", cause, "error", err)
		return
	}
	s.log.Warn("auth: registration rolled back", "user_id", id, "cause", cause)
}

// Login verifies credentials and opens (or replaces) the session for deviceID.
func (s *AuthService) Login(ctx context.Context, email, password, deviceID string) (*LoginResult, error) {
	deviceID = normalizeDevice(deviceID)
	ctx, span := startSpan(ctx, "Login", attribute.String("auth.device_id", deviceID))
	res, err := s.login(ctx, email, password, deviceID)
	endSpan(span, err)
	s.metrics.Login(outcome(err))
	return res, err
}

func (s *AuthService) login(ctx context.Context, email, password, deviceID string) (*LoginResult, error) {
	email = normalizeEmail(email)
	ident, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	if ident == nil {
		s.audit.LogEvent(ctx, audit.ActionLoginFailed, "", deviceID, ErrAccountNotFound.Code, nil)
		return nil, ErrAccountNotFound
	}
	if err := s.hasher.Compare(ident.PasswordHash, []byte(password)); err != nil {
		if errors.Is(err, security.ErrHashMismatch) {
			s.audit.LogEvent(ctx, audit.ActionLoginFailed, ident.ID, deviceID, ErrInvalidCredentials.Code, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ident.IsActive {
		s.audit.LogEvent(ctx, audit.ActionLoginFailed, ident.ID, deviceID, ErrAccountNotActivated.Code, nil)
		return nil, ErrAccountNotActivated
	}

	now := s.now()
	pair, fingerprint, err := s.issuePair(ident, deviceID)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		UserID:      ident.ID,
		DeviceID:    deviceID,
		JTI:         pair.JTI,
		RefreshHash: fingerprint,
		Revoked:     false,
		ExpiresAt:   pair.RefreshExpiresAt,
		LastUsedAt:  now,
		CreatedAt:   now,
	}
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	s.audit.LogEvent(ctx, audit.ActionLoginSucceeded, ident.ID, deviceID, metrics.OutcomeSuccess, nil)
	return &LoginResult{Tokens: *pair, User: summarize(ident)}, nil
}

// Refresh rotates the refresh token of (token subject, deviceID). A token that verifies
// but does not match the stored fingerprint revokes the session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID string) (*TokenPair, error) {
	deviceID = normalizeDevice(deviceID)
	ctx, span := startSpan(ctx, "Refresh", attribute.String("auth.device_id", deviceID))
	pair, err := s.refresh(ctx, refreshToken, deviceID)
	endSpan(span, err)
	s.metrics.Refresh(outcome(err))
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken, deviceID string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(security.KindRefresh, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID := claims.Subject
	// A token minted for another device never touches this device's session.
	if normalizeDevice(claims.DeviceID) != deviceID {
		s.audit.LogEvent(ctx, audit.ActionRefreshFailed, userID, deviceID, ErrInvalidSession.Code,
			map[string]string{"reason": "device_mismatch"})
		return nil, ErrInvalidSession
	}
	sess, err := s.sessions.GetByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil || sess.Revoked {
		s.audit.LogEvent(ctx, audit.ActionRefreshFailed, userID, deviceID, ErrInvalidSession.Code, nil)
		return nil, ErrInvalidSession
	}
	now := s.now()
	if sess.Expired(now) {
		s.audit.LogEvent(ctx, audit.ActionRefreshFailed, userID, deviceID, ErrSessionExpired.Code, nil)
		return nil, ErrSessionExpired
	}
	ok, err := security.RefreshFingerprintMatches(s.hasher, sess.RefreshHash, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("compare refresh fingerprint: %w", err)
	}
	if !ok {
		return nil, s.compromised(ctx, userID, deviceID, "fingerprint_mismatch")
	}
	ident, err := s.identities.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if ident == nil {
		return nil, ErrInvalidSession
	}

	pair, fingerprint, err := s.issuePair(ident, deviceID)
	if err != nil {
		return nil, err
	}
	next := sess.Rotated(pair.JTI, fingerprint, pair.RefreshExpiresAt, now)
	swapped, err := s.sessions.Rotate(ctx, sess.RefreshHash, next)
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if !swapped {
		// Another refresh or a logout changed the session after we read it.
		current, err := s.sessions.GetByUserAndDevice(ctx, userID, deviceID)
		if err != nil {
			return nil, fmt.Errorf("get session: %w", err)
		}
		if current == nil || current.Revoked {
			return nil, ErrInvalidSession
		}
		return nil, s.compromised(ctx, userID, deviceID, "concurrent_rotation")
	}
	s.audit.LogEvent(ctx, audit.ActionRefreshRotated, userID, deviceID, metrics.OutcomeSuccess, nil)
	return pair, nil
}

// compromised revokes the session and returns ErrSessionCompromised, or the revoke failure.
func (s *AuthService) compromised(ctx context.Context, userID, deviceID, reason string) error {
	if err := s.sessions.Revoke(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("revoke compromised session: %w", err)
	}
	s.audit.LogEvent(ctx, audit.ActionSessionCompromised, userID, deviceID, audit.OutcomeCompromised,
		map[string]string{"reason": reason})
	return ErrSessionCompromised
}

// Logout revokes the session of (userID, deviceID). Revoking a missing or already
// revoked session succeeds.
func (s *AuthService) Logout(ctx context.Context, userID, deviceID string) (err error) {
	ctx, span := startSpan(ctx, "Logout", attribute.String("auth.user_id", userID))
	defer func() { endSpan(span, err) }()
	if strings.TrimSpace(userID) == "" {
		return validationError("user id is required")
	}
	deviceID = normalizeDevice(deviceID)
	if err := s.sessions.Revoke(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.audit.LogEvent(ctx, audit.ActionLogout, userID, deviceID, metrics.OutcomeSuccess, nil)
	return nil
}

// issuePair signs an access and a refresh token with one fresh JTI and returns the
// refresh fingerprint to store.
func (s *AuthService) issuePair(ident *identitydomain.Identity, deviceID string) (*TokenPair, string, error) {
	jti := security.NewJTI()
	access, accessExp, err := s.tokens.Issue(security.KindAccess, security.Claims{
		RegisteredClaims: subjectClaims(ident.ID, jti),
		Email:            ident.Email,
		Name:             ident.Name,
		Role:             ident.Role,
		AccountID:        ident.ActiveAccountID,
		DeviceID:         deviceID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.Issue(security.KindRefresh, security.Claims{
		RegisteredClaims: subjectClaims(ident.ID, jti),
		DeviceID:         deviceID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("issue refresh token: %w", err)
	}
	fingerprint, err := security.RefreshFingerprint(s.hasher, refresh)
	if err != nil {
		return nil, "", fmt.Errorf("fingerprint refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		JTI:              jti,
	}, fingerprint, nil
}

func subjectClaims(userID, jti string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Subject: userID, ID: jti}
}

func newID() string {
	return uuid.NewString()
}

func summarize(i *identitydomain.Identity) UserSummary {
	return UserSummary{
		ID:              i.ID,
		Email:           i.Email,
		Name:            i.Name,
		Role:            i.Role,
		ActiveAccountID: i.ActiveAccountID,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeDevice(deviceID string) string {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return DefaultDeviceID
	}
	return deviceID
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	if !emailPattern.MatchString(email) {
		return validationError("invalid email format")
	}
	return nil
}

// outcome is the metrics label for err: success, the error code, or "error".
func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return metrics.OutcomeError
}
