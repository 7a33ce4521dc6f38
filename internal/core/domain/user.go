package domain

import (
	"strings"
	"time"
)

// Well-known groups. The four confirmation/blocking groups are hard stops
// evaluated before any restriction rule.
const (
	GroupAdmin              = "admin"
	GroupBlocked            = "blocked"
	GroupEmailNotConfirmed  = "emailNotConfirmed"
	GroupMobileNotConfirmed = "mobileNotConfirmed"
	GroupNotConfirmed       = "notConfirmed"
)

// User models an account together with its embedded token list.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Mobile   string `json:"mobile,omitempty"`

	// MobileCountryCode is kept apart from Mobile so lookups can match the
	// national number alone.
	MobileCountryCode string `json:"mobileCountryCode,omitempty"`

	Groups []string `json:"groups"`

	PasswordHash string `json:"-"`
	PasswordSalt string `json:"-"`

	TwoFactorEnabled bool `json:"twoFactorEnabled"`

	EmailVerified          bool   `json:"emailVerified"`
	EmailVerificationCode  string `json:"-"`
	MobileVerified         bool   `json:"mobileVerified"`
	MobileVerificationCode string `json:"-"`

	PasswordResetToken         string    `json:"-"`
	PasswordResetTokenExpireAt time.Time `json:"-"`
	PasswordResetTokenIssueAt  time.Time `json:"-"`

	OneTimePasswordHash     string    `json:"-"`
	OneTimePasswordExpireAt time.Time `json:"-"`

	RegisteredAt          time.Time `json:"registeredAt"`
	RegisteredByIP        string    `json:"registeredByIp,omitempty"`
	RegisteredByUserAgent string    `json:"registeredByUseragent,omitempty"`

	PasswordChangedAt          time.Time `json:"passwordChangedAt,omitempty"`
	PasswordChangedByIP        string    `json:"passwordChangedByIp,omitempty"`
	PasswordChangedByUserAgent string    `json:"passwordChangedByUseragent,omitempty"`

	Tokens []Token `json:"-"`
}

// InGroup reports whether the user is a member of group.
func (u *User) InGroup(group string) bool {
	for _, g := range u.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// IsAdmin reports membership of the admin group.
func (u *User) IsAdmin() bool { return u.InGroup(GroupAdmin) }

// TokenByAccess returns the embedded token with the given access-token value.
func (u *User) TokenByAccess(accessToken string) (Token, bool) {
	for _, t := range u.Tokens {
		if t.AccessToken == accessToken {
			return t, true
		}
	}
	return Token{}, false
}

// NormalizeUsername folds a username to its stored form.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
