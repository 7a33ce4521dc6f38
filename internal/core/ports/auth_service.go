package ports

import (
	"context"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// IssueInput carries what is needed to mint a token for a user.
type IssueInput struct {
	UserID    string
	UserAgent string
	ClientID  string // empty when no client requested the token
	GrantType domain.GrantType
}

// TokenService issues, validates and refreshes tokens and manages password
// material.
type TokenService interface {
	Issue(ctx context.Context, in IssueInput) (*domain.Token, error)
	Validate(ctx context.Context, accessToken string) (*domain.Token, error)
	Refresh(ctx context.Context, accessToken, refreshToken, userAgent string) (*domain.Token, error)
	IssuePasswordResetToken(ctx context.Context, userID string) (string, error)
	RedeemPasswordResetToken(ctx context.Context, user *domain.User, code string) error
	SetPassword(ctx context.Context, userID, newPassword, ip, userAgent string) error
	MatchPassword(user *domain.User, candidate string) bool
	HashSecret(secret string) (hash, salt string, err error)
	MatchSecret(hash, salt, candidate string) bool
	IssueOneTimePassword(ctx context.Context, userID string) (string, error)
	MatchOneTimePassword(user *domain.User, code string) bool
	Sessions(ctx context.Context, userID string) ([]domain.Token, error)
}

// RegisterInput is a registration request after field validation.
type RegisterInput struct {
	Username  string
	Password  string
	Email     string
	Mobile    string
	IP        string
	UserAgent string
}

// LoginInput is a password or one-time-password grant request.
type LoginInput struct {
	Username        string
	Mobile          string
	CountryCode     string
	Password        string
	OneTimePassword string
	UserAgent       string
}

// LoginResult is the issued token together with the resolved username.
type LoginResult struct {
	domain.Token
	Username string `json:"username"`
}

// ContactInput identifies a user by email or mobile.
type ContactInput struct {
	Email     string
	Mobile    string
	IP        string
	UserAgent string
}

// ResetPasswordInput redeems a password reset code.
type ResetPasswordInput struct {
	ContactInput
	Code     string
	Password string
}

// ChangePasswordInput changes the password of Actor, or of TargetUserID
// when Actor is an admin.
type ChangePasswordInput struct {
	Actor        *domain.User
	TargetUserID string
	Password     string
	IP           string
	UserAgent    string
}

// OneTimePasswordInput requests a one-time password by SMS.
type OneTimePasswordInput struct {
	Mobile      string
	CountryCode string
	IP          string
	UserAgent   string
}

// AccountService covers registration, login grants, password recovery,
// verification and group membership.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	CreateClient(ctx context.Context, owner *domain.User, name, secret string) (*domain.Client, error)
	ClientToken(ctx context.Context, clientID, secret, userAgent string) (*domain.Token, error)
	ChangeClientSecret(ctx context.Context, owner *domain.User, clientID, secret string) error
	SendPasswordResetToken(ctx context.Context, in ContactInput) error
	ResetPassword(ctx context.Context, in ResetPasswordInput) error
	ChangePassword(ctx context.Context, in ChangePasswordInput) error
	AddUserToGroup(ctx context.Context, userID, group string) error
	DeleteUserFromGroup(ctx context.Context, userID, group string) error
	SendVerifyEmail(ctx context.Context, email string) (*domain.Delivery, error)
	VerifyEmail(ctx context.Context, email, code string) error
	SendVerifySms(ctx context.Context, mobile string) (*domain.Delivery, error)
	VerifyMobile(ctx context.Context, mobile, code string) error
	SendOneTimePassword(ctx context.Context, in OneTimePasswordInput) error
}

// RestrictionService evaluates and manages restriction rules.
type RestrictionService interface {
	Evaluate(user *domain.User, controllerName, endpoint string) error
	Refresh(ctx context.Context) error
	Rules() []domain.RestrictionRule
	Upsert(ctx context.Context, rule domain.RestrictionRule) error
	Remove(ctx context.Context, key domain.RuleKey) error
}

// AuthorizeInput is what the guard needs from a request.
type AuthorizeInput struct {
	// BodyToken is the access_token field of the request body.
	BodyToken string
	// Authorization is the raw Authorization header.
	Authorization  string
	ControllerName string
	Endpoint       string
	Public         bool
}

// Principal is the authenticated caller of a non-public operation.
type Principal struct {
	User  *domain.User
	Token domain.Token
}

// Guard decides whether a request may reach an operation.
type Guard interface {
	Authorize(ctx context.Context, in AuthorizeInput) (*Principal, error)
}
