package domain

import "time"

// GrantType classifies how a token was obtained.
type GrantType string

const (
	GrantPassword          GrantType = "password"
	GrantClientCredentials GrantType = "client_credentials"
	GrantOneTime           GrantType = "one-time"
)

// TokenTypeBearer is the only token kind issued.
const TokenTypeBearer = "bearer"

// Token is a bearer capability embedded in its owner's token list. It is
// never mutated after creation.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	GrantType    GrantType `json:"grant_type"`
	UserID       string    `json:"userId"`
	ClientID     string    `json:"clientId,omitempty"`
	UserAgent    string    `json:"useragent"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	ExpiresIn    int64     `json:"expires_in"` // seconds
	TokenType    string    `json:"token_type"`
}

// ValidAt reports whether the token is still usable at instant now.
func (t Token) ValidAt(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}
