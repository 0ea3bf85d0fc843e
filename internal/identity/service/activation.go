package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"credential-lifecycle/internal/audit"
	identitydomain "credential-lifecycle/internal/identity/domain"
	"credential-lifecycle/internal/mailer"
	"credential-lifecycle/internal/metrics"
	"credential-lifecycle/internal/security"
)

// Messages returned by ResendActivation. Unknown emails get MessageActivationSent too.
const (
	MessageActivationSent   = "if an account exists for this email, an activation link has been sent"
	MessageAlreadyActivated = "account is already activated"
)

// ConfirmActivation activates the identity holding token and clears the token, so a
// second confirmation with the same token fails. A token that was percent-encoded
// once in transit is accepted.
func (s *AuthService) ConfirmActivation(ctx context.Context, token string) error {
	ctx, span := startSpan(ctx, "ConfirmActivation")
	userID, err := s.confirmActivation(ctx, token)
	endSpan(span, err)
	s.metrics.Activation(outcome(err))
	if err == nil {
		s.audit.LogEvent(ctx, audit.ActionActivationConfirmed, userID, "", metrics.OutcomeSuccess, nil)
	} else if e, ok := AsError(err); ok {
		s.audit.LogEvent(ctx, audit.ActionActivationFailed, userID, "", e.Code, nil)
	}
	return err
}

func (s *AuthService) confirmActivation(ctx context.Context, token string) (string, error) {
	candidates := activationCandidates(token)
	if len(candidates) == 0 {
		return "", ErrActivationInvalid
	}
	now := s.now()

	for _, c := range candidates {
		ident, err := s.identities.ConsumeActivationToken(ctx, c, now)
		if err != nil {
			return "", fmt.Errorf("consume activation token: %w", err)
		}
		if ident != nil {
			return ident.ID, s.ensureActive(ctx, ident.ID)
		}
	}

	// Nothing consumable: tell expired tokens apart from unknown ones, and activate
	// a still-valid token the conditional update missed.
	for _, c := range candidates {
		ident, err := s.identities.GetByActivationToken(ctx, c)
		if err != nil {
			return "", fmt.Errorf("get identity by activation token: %w", err)
		}
		if ident == nil {
			continue
		}
		if ident.ActivationExpired(now) {
			return ident.ID, ErrActivationExpired
		}
		ok, err := s.identities.ForceActivate(ctx, ident.ID, c, now)
		if err != nil {
			return ident.ID, fmt.Errorf("force activate: %w", err)
		}
		if ok {
			s.log.WarnContext(ctx, "auth: activation applied by fallback", "user_id", ident.ID)
			return ident.ID, s.ensureActive(ctx, ident.ID)
		}
	}
	return "", ErrActivationInvalid
}

// ensureActive re-reads the identity and requires it to be active.
func (s *AuthService) ensureActive(ctx context.Context, id string) error {
	ident, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload identity: %w", err)
	}
	if ident == nil || !ident.IsActive {
		return ErrActivationFailed
	}
	return nil
}

// activationCandidates returns the trimmed token and, if different, its percent-decoded form.
func activationCandidates(token string) []string {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	out := []string{token}
	if decoded, err := url.PathUnescape(token); err == nil && decoded != token && decoded != "" {
		out = append(out, decoded)
	}
	return out
}

// ResendActivation issues a fresh activation token for an inactive identity and
// mails it. The returned message does not reveal whether the email is registered.
func (s *AuthService) ResendActivation(ctx context.Context, email string) (msg string, err error) {
	ctx, span := startSpan(ctx, "ResendActivation")
	defer func() { endSpan(span, err) }()
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	ident, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("get identity by email: %w", err)
	}
	if ident == nil {
		return MessageActivationSent, nil
	}
	if ident.IsActive {
		return MessageAlreadyActivated, nil
	}
	token, err := security.NewActivationToken()
	if err != nil {
		return "", err
	}
	expiresAt := s.now().Add(s.activationTTL)
	ok, err := s.identities.SetActivationToken(ctx, ident.ID, token, expiresAt, s.now())
	if err != nil {
		return "", fmt.Errorf("set activation token: %w", err)
	}
	if !ok {
		// Activated between the read and the write.
		return MessageAlreadyActivated, nil
	}
	mailer.SendAsync(s.mailer, s.log, email, token, ident.Name, s.mailDone)
	s.audit.LogEvent(ctx, audit.ActionActivationResent, ident.ID, "", metrics.OutcomeSuccess, nil)
	return MessageActivationSent, nil
}

// PendingActivation reports whether the identity with email still awaits activation.
func (s *AuthService) PendingActivation(ctx context.Context, email string) (bool, error) {
	ident, err := s.identities.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("get identity by email: %w", err)
	}
	if ident == nil {
		return false, ErrNotFound
	}
	return pending(ident), nil
}

func pending(i *identitydomain.Identity) bool {
	return !i.IsActive && i.HasPendingActivation()
}
