package handler

import "github.com/serendip/gatekeeper/internal/core/domain"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// messageResponse is the body of operations that finish with a message.
type messageResponse struct {
	Message string `json:"message"`
}

// --- Request / Response types ---

type registerRequest struct {
	Username string `json:"username" validate:"required,min=6,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=4,max=32"`
	Email    string `json:"email"    validate:"omitempty,email"`
	Mobile   string `json:"mobile"   validate:"omitempty,numeric"`
}

type registerResponse struct {
	Username string `json:"username"`
}

type tokenRequest struct {
	GrantType         string `json:"grant_type"        validate:"omitempty,oneof=password client_credentials"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	Mobile            string `json:"mobile"`
	MobileCountryCode string `json:"mobileCountryCode"`
	OneTimePassword   string `json:"oneTimePassword"`
	ClientID          string `json:"clientId"          validate:"required_if=GrantType client_credentials"`
	ClientSecret      string `json:"clientSecret"      validate:"required_if=GrantType client_credentials"`
}

type refreshTokenRequest struct {
	AccessToken  string `json:"access_token"  validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type clientTokenRequest struct {
	ClientID     string `json:"clientId"     validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
}

type createClientRequest struct {
	Name   string `json:"name"   validate:"required"`
	Secret string `json:"secret" validate:"required,min=6"`
}

type changeSecretRequest struct {
	ClientID string `json:"clientId" validate:"required"`
	Secret   string `json:"secret"   validate:"required,min=6"`
}

type contactRequest struct {
	Email  string `json:"email"  validate:"omitempty,email"`
	Mobile string `json:"mobile"`
}

type resetPasswordRequest struct {
	Email           string `json:"email"           validate:"omitempty,email"`
	Mobile          string `json:"mobile"`
	Code            string `json:"code"            validate:"required"`
	Password        string `json:"password"        validate:"required,min=4,max=32"`
	PasswordConfirm string `json:"passwordConfirm" validate:"eqfield=Password"`
}

type changePasswordRequest struct {
	User            string `json:"user"`
	Password        string `json:"password"        validate:"required,min=4,max=32"`
	PasswordConfirm string `json:"passwordConfirm" validate:"eqfield=Password"`
}

type groupRequest struct {
	User  string `json:"user"  validate:"required"`
	Group string `json:"group" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code"  validate:"required"`
}

type mobileRequest struct {
	Mobile string `json:"mobile" validate:"required"`
}

type verifyMobileRequest struct {
	Mobile string `json:"mobile" validate:"required"`
	Code   string `json:"code"   validate:"required"`
}

type oneTimePasswordRequest struct {
	Mobile            string `json:"mobile"            validate:"required"`
	MobileCountryCode string `json:"mobileCountryCode"`
}

// --- Restriction rules ---

type ruleRequest struct {
	ControllerName string   `json:"controllerName"`
	Endpoint       string   `json:"endpoint"`
	AllowAll       bool     `json:"allowAll"`
	Groups         []string `json:"groups"`
	Users          []string `json:"users"`
}

func (r ruleRequest) toDomain() domain.RestrictionRule {
	return domain.RestrictionRule{
		ControllerName: r.ControllerName,
		Endpoint:       r.Endpoint,
		AllowAll:       r.AllowAll,
		Groups:         nonNil(r.Groups),
		Users:          nonNil(r.Users),
	}
}

type ruleKeyRequest struct {
	ControllerName string `json:"controllerName"`
	Endpoint       string `json:"endpoint"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
