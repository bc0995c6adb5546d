package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway auth core
var (
	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Client errors
	ErrInvalidClient       = errors.New("invalid client")
	ErrInvalidClientSecret = errors.New("invalid client secret")
	ErrInvalidRedirectURI  = errors.New("invalid redirect URI")
	ErrRegistrationDenied  = errors.New("registration denied by redirect URI policy")

	// Authorization errors
	ErrInvalidGrant             = errors.New("invalid grant")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrInvalidCodeChallenge     = errors.New("invalid code challenge")
	ErrInvalidRequest           = errors.New("invalid request")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// Upstream provider errors
	ErrReauthenticationRequired = errors.New("re-authentication required")
	ErrUpstreamExchangeFailed   = errors.New("upstream token exchange failed")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Kind classifies an error so call sites can switch on the category
// instead of probing error shapes.
type Kind int

const (
	KindUnknown Kind = iota
	KindClient       // malformed/invalid OAuth parameters from a downstream client
	KindAuth         // failed bearer/session authentication
	KindUpstream     // identity-provider exchange or refresh failure
	KindStorage      // persistence backend failure
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindAuth:
		return "auth"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error carries a kind plus an optional RFC 6749 error code alongside the
// wrapped cause.
type Error struct {
	Kind Kind
	Code string // machine-readable code, e.g. "invalid_grant"
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and code.
func E(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// KindOf returns the kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the machine-readable code of err, or "" if err carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
