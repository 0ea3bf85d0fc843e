package service

import (
	"context"
	"errors"
)

// Kind classifies an Error for transport mapping.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindBadRequest
	KindUnauthenticated
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is an expected failure of a credential operation. Code is the stable,
// client-visible identifier; Message is optional detail for validation errors.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// Is matches any *Error with the same Code and Kind, so errors carrying a
// Message still compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Kind == e.Kind
}

// Sentinel errors; the handler maps Kind to gRPC codes and sends Code as the message.
var (
	ErrValidation             = &Error{Code: "validation_failed", Kind: KindValidation}
	ErrPasswordMismatch       = &Error{Code: "password_mismatch", Kind: KindValidation}
	ErrEmailAlreadyRegistered = &Error{Code: "email_already_registered", Kind: KindBadRequest}
	ErrAccountNotFound        = &Error{Code: "account_not_found", Kind: KindUnauthenticated}
	ErrInvalidCredentials     = &Error{Code: "invalid_credentials", Kind: KindUnauthenticated}
	ErrAccountNotActivated    = &Error{Code: "account_not_activated", Kind: KindUnauthenticated}
	ErrInvalidToken           = &Error{Code: "invalid_or_expired", Kind: KindUnauthenticated}
	ErrInvalidSession         = &Error{Code: "invalid_session", Kind: KindUnauthenticated}
	ErrSessionExpired         = &Error{Code: "session_expired", Kind: KindUnauthenticated}
	ErrSessionCompromised     = &Error{Code: "session_compromised", Kind: KindUnauthenticated}
	ErrActivationExpired      = &Error{Code: "expired", Kind: KindBadRequest}
	ErrActivationInvalid      = &Error{Code: "invalid_or_expired", Kind: KindBadRequest}
	ErrActivationFailed       = &Error{Code: "activation_failed", Kind: KindBadRequest}
	ErrNotFound               = &Error{Code: "not_found", Kind: KindNotFound}
)

func validationError(msg string) error {
	return &Error{Code: ErrValidation.Code, Kind: KindValidation, Message: msg}
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsTransient reports whether err is a deadline or cancellation rather than a definite answer.
func IsTransient(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
