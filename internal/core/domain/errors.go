package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. The set is closed; transports map each kind to
// a response status.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is the error type produced by every component of the core.
//
// Code is a short machine-readable reason, Message is safe to show to the
// caller. Status optionally overrides the status a transport derives from
// Kind. Err carries the underlying cause for upstream failures and is never
// exposed to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by identity and, for wrapped copies, by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.Code != "" && e.Code == t.Code && e.Kind == t.Kind)
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Validation builds an ad-hoc validation error with the given message.
func Validation(msg string) *Error {
	return newError(KindValidation, "invalid_input", msg)
}

// Upstream wraps a store or notification failure.
func Upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Code: "upstream", Message: "server error", Err: err}
}

// KindOf reports the Kind of err, or KindUpstream for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUpstream
}

// Authentication.
var (
	ErrMissingToken        = newError(KindAuthentication, "missing_token", "access_token not found in body and authorization header")
	ErrTokenNotFound       = newError(KindAuthentication, "token_not_found", "access_token invalid")
	ErrTokenExpired        = newError(KindAuthentication, "token_expired", "access_token expired")
	ErrInvalidAccessToken  = newError(KindAuthentication, "invalid_access_token", "access token invalid")
	ErrInvalidRefreshToken = newError(KindAuthentication, "invalid_refresh_token", "refresh token invalid")
	ErrInvalidCredentials  = newError(KindAuthentication, "invalid_credentials", "user/password invalid")
	ErrClientSecretInvalid = newError(KindAuthentication, "client_secret_mismatch", "client secret mismatch")
)

// Authorization.
var (
	ErrUserBlocked            = newError(KindAuthorization, "user_blocked", "user access is blocked")
	ErrEmailNotConfirmed      = newError(KindAuthorization, "email_not_confirmed", "user email needs to get confirmed")
	ErrMobileNotConfirmed     = newError(KindAuthorization, "mobile_not_confirmed", "user mobile needs to get confirmed")
	ErrUserNotConfirmed       = newError(KindAuthorization, "user_not_confirmed", "user needs to get confirmed")
	ErrGroupAccessDenied      = newError(KindAuthorization, "group_access_denied", "user group access is denied")
	ErrAdminRequired          = newError(KindAuthorization, "admin_required", "admin access required")
	ErrClientOwnerRequired    = newError(KindAuthorization, "client_owner_required", "you need to be owner of client to change it's secret")
	ErrLoginEmailUnconfirmed  = &Error{Kind: KindAuthorization, Code: "login_email_not_confirmed", Message: "email not confirmed", Status: 403}
	ErrLoginMobileUnconfirmed = &Error{Kind: KindAuthorization, Code: "login_mobile_not_confirmed", Message: "mobile not confirmed", Status: 403}
)

// Not found.
var (
	ErrUserNotFound   = newError(KindNotFound, "user_not_found", "user not found")
	ErrClientNotFound = newError(KindNotFound, "client_not_found", "client not found")
	ErrRuleNotFound   = newError(KindNotFound, "rule_not_found", "restriction rule not found")
)

// Conflict.
var (
	ErrUsernameTaken = newError(KindConflict, "duplicate_username", "username already exists")
	ErrEmailTaken    = newError(KindConflict, "duplicate_email", "email already exists")
	ErrMobileTaken   = newError(KindConflict, "duplicate_mobile", "mobile already exists")
	ErrClientExists  = newError(KindConflict, "duplicate_client", "client already exists")
)

// Validation.
var (
	ErrResetThrottled       = newError(KindValidation, "reset_throttled", "minimum interval between reset password request is 60 seconds")
	ErrSendThrottled        = newError(KindValidation, "send_throttled", "minimum interval between verification requests not passed")
	ErrInvalidCode          = newError(KindValidation, "invalid_code", "invalid code")
	ErrCodeExpired          = newError(KindValidation, "code_expired", "code expired")
	ErrPasswordMismatch     = newError(KindValidation, "password_mismatch", "password and passwordConfirm do not match")
	ErrPasswordRequired     = newError(KindValidation, "password_missing", "include password")
	ErrEmailOrMobileMissing = newError(KindValidation, "email_or_mobile_missing", "email or mobile missing")
)

// ErrNoTemplateSource is reported, not thrown, by the mail path when a named
// template has no loaded source.
var ErrNoTemplateSource = newError(KindValidation, "no_template_source", "no template source")
