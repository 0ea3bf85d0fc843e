package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"credential-lifecycle/internal/account"
	identityrepo "credential-lifecycle/internal/identity/repository"
	"credential-lifecycle/internal/security"
	sessiondomain "credential-lifecycle/internal/session/domain"
	sessionrepo "credential-lifecycle/internal/session/repository"
)

const (
	testEmail    = "u@example.com"
	testPassword = "Secret123!"
)

// recordingSender captures activation mails.
type recordingSender struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (r *recordingSender) SendActivation(ctx context.Context, email, token, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens == nil {
		r.tokens = make(map[string]string)
	}
	r.tokens[email] = token
	return r.err
}

type testEnv struct {
	svc        *AuthService
	identities *identityrepo.MemoryRepository
	sessions   *sessionrepo.MemoryRepository
	accounts   *account.LocalProvisioner
	sender     *recordingSender
	mails      chan error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		identities: identityrepo.NewMemoryRepository(),
		sessions:   sessionrepo.NewMemoryRepository(),
		accounts:   account.NewLocalProvisioner(),
		sender:     &recordingSender{},
		mails:      make(chan error, 16),
	}
	svc, err := NewAuthService(Deps{
		Identities: env.identities,
		Sessions:   env.sessions,
		Hasher:     security.NewHasher(4),
		Tokens:     security.NewTestTokenCodec(),
		Mailer:     env.sender,
		Accounts:   env.accounts,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	svc.mailDone = func(err error) { env.mails <- err }
	env.svc = svc
	return env
}

func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Name:            "U",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res.UserID
}

// activationToken reads the pending token from the store.
func (e *testEnv) activationToken(t *testing.T, email string) string {
	t.Helper()
	ident, err := e.identities.GetByEmail(context.Background(), email)
	if err != nil || ident == nil || ident.ActivationToken == nil {
		t.Fatalf("no pending activation for %s: %v", email, err)
	}
	return *ident.ActivationToken
}

func (e *testEnv) activeUser(t *testing.T, email string) string {
	t.Helper()
	id := e.register(t, email)
	if err := e.svc.ConfirmActivation(context.Background(), e.activationToken(t, email)); err != nil {
		t.Fatalf("ConfirmActivation: %v", err)
	}
	return id
}

func (e *testEnv) login(t *testing.T, email, deviceID string) *LoginResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), email, testPassword, deviceID)
	if err != nil {
		t.Fatalf("Login(%s): %v", deviceID, err)
	}
	return res
}

func TestNewAuthService_RequiresDeps(t *testing.T) {
	_, err := NewAuthService(Deps{}, Config{})
	if err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestRegister_CreatesInactiveIdentity(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, " U@Example.com ")

	ident, _ := env.identities.GetByID(context.Background(), id)
	if ident == nil {
		t.Fatal("identity not stored")
	}
	if ident.Email != testEmail {
		t.Errorf("email = %q, want normalized %q", ident.Email, testEmail)
	}
	if ident.IsActive {
		t.Error("new identity should be inactive")
	}
	if !ident.HasPendingActivation() {
		t.Error("new identity should have a pending activation token")
	}
	if ident.PasswordHash == testPassword {
		t.Error("password stored in clear")
	}
	if ident.DefaultCurrency != "USD" {
		t.Errorf("currency = %q, want USD", ident.DefaultCurrency)
	}
	acc, ok := env.accounts.Get(id)
	if !ok || ident.ActiveAccountID != acc.ID {
		t.Errorf("active account = %q, provisioned %+v", ident.ActiveAccountID, acc)
	}

	select {
	case err := <-env.mails:
		if err != nil {
			t.Fatalf("send: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("activation email not sent")
	}
	env.sender.mu.Lock()
	sent := env.sender.tokens[testEmail]
	env.sender.mu.Unlock()
	if sent != *ident.ActivationToken {
		t.Error("mailed token does not match stored token")
	}
	expiry := ident.ActivationExpiresAt.Sub(ident.CreatedAt)
	if expiry != 30*time.Minute {
		t.Errorf("activation ttl = %v, want 30m", expiry)
	}
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"empty email", RegisterInput{Password: "p", ConfirmPassword: "p"}, ErrValidation},
		{"bad email", RegisterInput{Email: "nope", Password: "p", ConfirmPassword: "p"}, ErrValidation},
		{"empty password", RegisterInput{Email: "a@example.com"}, ErrValidation},
		{"negative age", RegisterInput{Email: "a@example.com", Password: "p", ConfirmPassword: "p", Age: -1}, ErrValidation},
		{"mismatch", RegisterInput{Email: "a@example.com", Password: "p", ConfirmPassword: "q"}, ErrPasswordMismatch},
		{"long currency", RegisterInput{Email: "a@example.com", Password: "p", ConfirmPassword: "p", DefaultCurrency: "EURO"}, ErrValidation},
		{"non-letter currency", RegisterInput{Email: "a@example.com", Password: "p", ConfirmPassword: "p", DefaultCurrency: "U$D"}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Register(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRegister_CurrencyNormalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.svc.Register(ctx, RegisterInput{
		Email: testEmail, Password: "p", ConfirmPassword: "p", DefaultCurrency: " eur ",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	ident, _ := env.identities.GetByID(ctx, res.UserID)
	if ident.DefaultCurrency != "EUR" {
		t.Errorf("DefaultCurrency = %q, want EUR", ident.DefaultCurrency)
	}

	_, err = env.svc.Register(ctx, RegisterInput{
		Email: "b@example.com", Password: "p", ConfirmPassword: "p", DefaultCurrency: "EURO",
	})
	if e, ok := AsError(err); !ok || e.Kind != KindValidation {
		t.Fatalf("err = %v, want typed validation error", err)
	}
	if got, _ := env.identities.GetByEmail(ctx, "b@example.com"); got != nil {
		t.Error("rejected registration must not create an identity")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail)
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: testEmail, Password: "x", ConfirmPassword: "y",
	})
	// Existing email is reported before the password mismatch.
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Errorf("err = %v, want ErrEmailAlreadyRegistered", err)
	}
}

// failingProvisioner always fails.
type failingProvisioner struct{}

func (failingProvisioner) ProvisionDefault(ctx context.Context, userID, currency string) (string, error) {
	return "", errors.New("ledger unavailable")
}

func TestRegister_ProvisionFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.svc.accounts = failingProvisioner{}
	_, err := env.svc.Register(context.Background(), RegisterInput{
		Email: testEmail, Password: testPassword, ConfirmPassword: testPassword,
	})
	if err == nil || !strings.Contains(err.Error(), "ledger unavailable") {
		t.Fatalf("err = %v, want provisioning failure", err)
	}
	if _, ok := AsError(err); ok {
		t.Error("provisioning failure should not be a client error")
	}
	ident, _ := env.identities.GetByEmail(context.Background(), testEmail)
	if ident != nil {
		t.Error("identity should have been deleted")
	}
	// The email is free again.
	env.svc.accounts = env.accounts
	env.register(t, testEmail)
}

func TestRegister_MailFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	env.sender.err = errors.New("smtp down")
	env.register(t, testEmail)
	select {
	case err := <-env.mails:
		if err == nil {
			t.Error("expected send error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send not attempted")
	}
}

func TestLogin_BeforeAndAfterActivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, testEmail)

	_, err := env.svc.Login(ctx, testEmail, testPassword, "dev1")
	if !errors.Is(err, ErrAccountNotActivated) {
		t.Fatalf("Login before activation: err = %v, want ErrAccountNotActivated", err)
	}
	if err := env.svc.ConfirmActivation(ctx, env.activationToken(t, testEmail)); err != nil {
		t.Fatalf("ConfirmActivation: %v", err)
	}
	res := env.login(t, testEmail, "dev1")
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
	if res.User.Email != testEmail || res.User.ActiveAccountID == "" {
		t.Errorf("user summary = %+v", res.User)
	}

	claims, err := env.svc.tokens.Verify(security.KindAccess, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if claims.Subject != res.User.ID || claims.DeviceID != "dev1" || claims.ID != res.Tokens.JTI {
		t.Errorf("claims = %+v", claims)
	}
	sess, _ := env.sessions.GetByUserAndDevice(ctx, res.User.ID, "dev1")
	if sess == nil || sess.Revoked || sess.JTI != res.Tokens.JTI {
		t.Fatalf("session = %+v", sess)
	}
	if sess.RefreshHash == res.Tokens.RefreshToken {
		t.Error("refresh token stored in clear")
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeUser(t, testEmail)

	if _, err := env.svc.Login(ctx, "nobody@example.com", testPassword, ""); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("unknown email: err = %v", err)
	}
	if _, err := env.svc.Login(ctx, testEmail, "wrong", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
}

func TestLogin_EmptyDeviceUsesDefault(t *testing.T) {
	env := newTestEnv(t)
	id := env.activeUser(t, testEmail)
	env.login(t, testEmail, "")
	sess, _ := env.sessions.GetByUserAndDevice(context.Background(), id, DefaultDeviceID)
	if sess == nil {
		t.Fatal("expected session under the default device id")
	}
}

func TestLogin_DeviceLessClientsShareSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeUser(t, testEmail)
	first := env.login(t, testEmail, "")
	env.login(t, testEmail, "")

	_, err := env.svc.Refresh(ctx, first.Tokens.RefreshToken, "")
	if !errors.Is(err, ErrSessionCompromised) {
		t.Errorf("err = %v, want ErrSessionCompromised for the replaced default session", err)
	}
}

func TestRefresh_Scenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeUser(t, testEmail)
	first := env.login(t, testEmail, "dev1")
	a, r := first.Tokens.AccessToken, first.Tokens.RefreshToken

	second, err := env.svc.Refresh(ctx, r, "dev1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.AccessToken == a || second.RefreshToken == r {
		t.Error("refresh must return a new pair")
	}
	if second.JTI == first.Tokens.JTI {
		t.Error("refresh must rotate the jti")
	}

	if _, err := env.svc.Refresh(ctx, r, "dev1"); !errors.Is(err, ErrSessionCompromised) {
		t.Fatalf("replay: err = %v, want ErrSessionCompromised", err)
	}
	if _, err := env.svc.Refresh(ctx, second.RefreshToken, "dev1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after replay: err = %v, want ErrInvalidSession", err)
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")

	for name, tok := range map[string]string{
		"garbage":      "not-a-jwt",
		"empty":        "",
		"access token": res.Tokens.AccessToken,
	} {
		if _, err := env.svc.Refresh(ctx, tok, "dev1"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
	// Rejected tokens leave the session untouched.
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); err != nil {
		t.Errorf("Refresh after rejected attempts: %v", err)
	}
}

func TestRefresh_NoSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.activeUser(t, testEmail)
	tok, _, err := env.svc.tokens.Issue(security.KindRefresh, security.Claims{
		RegisteredClaims: subjectClaims(id, security.NewJTI()),
		DeviceID:         "dev9",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Refresh(context.Background(), tok, "dev9"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("err = %v, want ErrInvalidSession", err)
	}
}

func TestRefresh_SessionExpired(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")

	env.svc.now = func() time.Time { return res.Tokens.RefreshExpiresAt.Add(time.Second) }
	if _, err := env.svc.Refresh(context.Background(), res.Tokens.RefreshToken, "dev1"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

func TestRefresh_DeviceMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeUser(t, testEmail)
	dev1 := env.login(t, testEmail, "dev1")
	dev2 := env.login(t, testEmail, "dev2")

	if _, err := env.svc.Refresh(ctx, dev1.Tokens.RefreshToken, "dev2"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}
	if _, err := env.svc.Refresh(ctx, dev2.Tokens.RefreshToken, "dev2"); err != nil {
		t.Errorf("dev2 session must be unaffected: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, dev1.Tokens.RefreshToken, "dev1"); err != nil {
		t.Errorf("dev1 session must be unaffected: %v", err)
	}
}

func TestDeviceIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeUser(t, testEmail)
	dev1 := env.login(t, testEmail, "dev1")
	dev2 := env.login(t, testEmail, "dev2")

	rotated, err := env.svc.Refresh(ctx, dev1.Tokens.RefreshToken, "dev1")
	if err != nil {
		t.Fatalf("Refresh dev1: %v", err)
	}
	if err := env.svc.Logout(ctx, id, "dev1"); err != nil {
		t.Fatalf("Logout dev1: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, rotated.RefreshToken, "dev1"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("dev1 after logout: err = %v", err)
	}
	if _, err := env.svc.Refresh(ctx, dev2.Tokens.RefreshToken, "dev2"); err != nil {
		t.Errorf("dev2 must survive dev1 rotation and logout: %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")

	for i := 0; i < 2; i++ {
		if err := env.svc.Logout(ctx, id, "dev1"); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("err = %v, want ErrInvalidSession", err)
	}
	if err := env.svc.Logout(ctx, id, "never-logged-in"); err != nil {
		t.Errorf("Logout of missing session: %v", err)
	}
	if err := env.svc.Logout(ctx, " ", "dev1"); !errors.Is(err, ErrValidation) {
		t.Errorf("Logout without user: err = %v", err)
	}
}

func TestRefresh_ConcurrentReplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")

	const n = 2
	var wg sync.WaitGroup
	pairs := make([]*TokenPair, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			pairs[i], errs[i] = env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1")
		}(i)
	}
	close(start)
	wg.Wait()

	var winner *TokenPair
	for i := 0; i < n; i++ {
		if errs[i] == nil {
			if winner != nil {
				t.Fatal("both concurrent refreshes succeeded")
			}
			winner = pairs[i]
			continue
		}
		if !errors.Is(errs[i], ErrSessionCompromised) {
			t.Errorf("loser err = %v, want ErrSessionCompromised", errs[i])
		}
	}
	if winner == nil {
		t.Fatal("no concurrent refresh succeeded")
	}
	// The loser revoked the session.
	if _, err := env.svc.Refresh(ctx, winner.RefreshToken, "dev1"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("winner token after replay: err = %v, want ErrInvalidSession", err)
	}
}

// staleSessions returns a snapshot taken before another writer rotated the session,
// forcing the compare-and-set path.
type staleSessions struct {
	*sessionrepo.MemoryRepository
	stale *sessiondomain.Session
}

func (s *staleSessions) GetByUserAndDevice(ctx context.Context, userID, deviceID string) (*sessiondomain.Session, error) {
	if s.stale != nil {
		out := *s.stale
		s.stale = nil
		return &out, nil
	}
	return s.MemoryRepository.GetByUserAndDevice(ctx, userID, deviceID)
}

func TestRefresh_LostRotationRevokes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")

	snapshot, _ := env.sessions.GetByUserAndDevice(ctx, id, "dev1")
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); err != nil {
		t.Fatal(err)
	}
	env.svc.sessions = &staleSessions{MemoryRepository: env.sessions, stale: snapshot}
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); !errors.Is(err, ErrSessionCompromised) {
		t.Fatalf("err = %v, want ErrSessionCompromised", err)
	}
	sess, _ := env.sessions.GetByUserAndDevice(ctx, id, "dev1")
	if !sess.Revoked {
		t.Error("session should be revoked after a lost rotation")
	}
}

func TestRefresh_LostRotationToLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")

	snapshot, _ := env.sessions.GetByUserAndDevice(ctx, id, "dev1")
	if err := env.svc.Logout(ctx, id, "dev1"); err != nil {
		t.Fatal(err)
	}
	env.svc.sessions = &staleSessions{MemoryRepository: env.sessions, stale: snapshot}
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}
}

func TestRefresh_DeletedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")
	if err := env.identities.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("err = %v, want ErrInvalidSession", err)
	}
}

// brokenSessions fails every call.
type brokenSessions struct{}

var errStoreDown = errors.New("store down")

func (brokenSessions) GetByUserAndDevice(context.Context, string, string) (*sessiondomain.Session, error) {
	return nil, errStoreDown
}
func (brokenSessions) Upsert(context.Context, *sessiondomain.Session) error { return errStoreDown }
func (brokenSessions) Rotate(context.Context, string, *sessiondomain.Session) (bool, error) {
	return false, errStoreDown
}
func (brokenSessions) Revoke(context.Context, string, string) error { return errStoreDown }

func TestStoreFailuresPropagate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.activeUser(t, testEmail)
	res := env.login(t, testEmail, "dev1")
	env.svc.sessions = brokenSessions{}

	if _, err := env.svc.Login(ctx, testEmail, testPassword, "dev1"); !errors.Is(err, errStoreDown) {
		t.Errorf("Login: err = %v", err)
	}
	if _, err := env.svc.Refresh(ctx, res.Tokens.RefreshToken, "dev1"); !errors.Is(err, errStoreDown) {
		t.Errorf("Refresh: err = %v", err)
	}
	if err := env.svc.Logout(ctx, id, "dev1"); !errors.Is(err, errStoreDown) {
		t.Errorf("Logout: err = %v", err)
	}
}

func TestOutcome(t *testing.T) {
	if outcome(nil) != "success" {
		t.Error("nil should be success")
	}
	if outcome(ErrSessionCompromised) != "session_compromised" {
		t.Error("client errors use their code")
	}
	if outcome(errStoreDown) != "error" {
		t.Error("infrastructure errors use error")
	}
}

var _ IdentityRepo = (*identityrepo.MemoryRepository)(nil)
