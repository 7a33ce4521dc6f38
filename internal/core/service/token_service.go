package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const (
	resetCodeLength = 8
	saltLength      = 6
	otpLength       = 6
	refreshBytes    = 32
)

// TokenConfig holds the token and password settings of a TokenService.
type TokenConfig struct {
	ExpireIn      time.Duration
	ResetInterval time.Duration
	OTPExpireIn   time.Duration
	HashCost      int
}

func (c *TokenConfig) applyDefaults() {
	if c.ExpireIn <= 0 {
		c.ExpireIn = 2 * time.Hour
	}
	if c.ResetInterval <= 0 {
		c.ResetInterval = time.Minute
	}
	if c.OTPExpireIn <= 0 {
		c.OTPExpireIn = 5 * time.Minute
	}
	if c.HashCost == 0 {
		c.HashCost = bcrypt.DefaultCost
	}
}

// TokenService implements the token lifecycle and password material.
type TokenService struct {
	users  ports.UserRepository
	minter ports.TokenMinter
	cfg    TokenConfig
	now    func() time.Time
	log    zerolog.Logger
}

var _ ports.TokenService = (*TokenService)(nil)

func NewTokenService(users ports.UserRepository, minter ports.TokenMinter, cfg TokenConfig, log zerolog.Logger) *TokenService {
	cfg.applyDefaults()
	return &TokenService{
		users:  users,
		minter: minter,
		cfg:    cfg,
		now:    time.Now,
		log:    log,
	}
}

// WithClock replaces the time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue mints a token for in.UserID and appends it to the user's token list.
// Existing tokens are left untouched.
func (s *TokenService) Issue(ctx context.Context, in ports.IssueInput) (*domain.Token, error) {
	access, err := s.minter.Mint(in.UserID)
	if err != nil {
		return nil, domain.Upstream(fmt.Errorf("mint access token: %w", err))
	}
	refresh, err := randomHex(refreshBytes)
	if err != nil {
		return nil, domain.Upstream(err)
	}

	now := s.now().UTC()
	token := domain.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		GrantType:    in.GrantType,
		UserID:       in.UserID,
		ClientID:     in.ClientID,
		UserAgent:    in.UserAgent,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.cfg.ExpireIn),
		ExpiresIn:    int64(s.cfg.ExpireIn / time.Second),
		TokenType:    domain.TokenTypeBearer,
	}

	if err := s.users.AppendToken(ctx, in.UserID, token); err != nil {
		return nil, upstream(err)
	}

	s.log.Debug().
		Str("user_id", in.UserID).
		Str("grant_type", string(in.GrantType)).
		Msg("token issued")

	return &token, nil
}

// Validate resolves accessToken to its stored token, stamped with the owner
// id. It fails with ErrTokenNotFound or ErrTokenExpired.
func (s *TokenService) Validate(ctx context.Context, accessToken string) (*domain.Token, error) {
	if !s.minter.Recognize(accessToken) {
		return nil, domain.ErrTokenNotFound
	}

	token, err := s.lookup(ctx, accessToken)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}

	if !token.ValidAt(s.now()) {
		return nil, domain.ErrTokenExpired
	}
	return token, nil
}

// Refresh exchanges a known access token and its exact refresh token for a
// brand-new password-grant token. The old token stays as it is.
func (s *TokenService) Refresh(ctx context.Context, accessToken, refreshToken, userAgent string) (*domain.Token, error) {
	token, err := s.lookup(ctx, accessToken)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidAccessToken
		}
		return nil, err
	}

	if refreshToken == "" || subtle.ConstantTimeCompare([]byte(token.RefreshToken), []byte(refreshToken)) != 1 {
		return nil, domain.ErrInvalidRefreshToken
	}

	return s.Issue(ctx, ports.IssueInput{
		UserID:    token.UserID,
		UserAgent: userAgent,
		GrantType: domain.GrantPassword,
	})
}

func (s *TokenService) lookup(ctx context.Context, accessToken string) (*domain.Token, error) {
	if accessToken == "" {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.users.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, upstream(err)
	}
	token, ok := user.TokenByAccess(accessToken)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	token.UserID = user.ID
	return &token, nil
}

// IssuePasswordResetToken stores a fresh reset code on the user and returns
// it. Requests closer than ResetInterval to the last one are refused.
func (s *TokenService) IssuePasswordResetToken(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", upstream(err)
	}

	now := s.now().UTC()
	if !user.PasswordResetTokenIssueAt.IsZero() && now.Sub(user.PasswordResetTokenIssueAt) < s.cfg.ResetInterval {
		return "", domain.ErrResetThrottled
	}

	code, err := randomString(resetCodeLength, alphanumeric)
	if err != nil {
		return "", domain.Upstream(err)
	}

	user.PasswordResetToken = strings.ToLower(code)
	user.PasswordResetTokenExpireAt = now.Add(s.cfg.ExpireIn)
	user.PasswordResetTokenIssueAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return "", upstream(err)
	}
	return user.PasswordResetToken, nil
}

// RedeemPasswordResetToken checks code against the user's reset code and
// clears it on success.
func (s *TokenService) RedeemPasswordResetToken(ctx context.Context, user *domain.User, code string) error {
	if user.PasswordResetToken == "" || subtle.ConstantTimeCompare([]byte(user.PasswordResetToken), []byte(strings.ToLower(code))) != 1 {
		return domain.ErrInvalidCode
	}
	if !s.now().Before(user.PasswordResetTokenExpireAt) {
		return domain.ErrCodeExpired
	}

	user.PasswordResetToken = ""
	user.PasswordResetTokenExpireAt = time.Time{}
	if err := s.users.Update(ctx, user); err != nil {
		return upstream(err)
	}
	return nil
}

// SetPassword stores a new salted hash of newPassword and stamps who changed
// it.
func (s *TokenService) SetPassword(ctx context.Context, userID, newPassword, ip, userAgent string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return upstream(err)
	}

	hash, salt, err := s.HashSecret(newPassword)
	if err != nil {
		return domain.Upstream(err)
	}

	user.PasswordHash = hash
	user.PasswordSalt = salt
	user.PasswordChangedAt = s.now().UTC()
	user.PasswordChangedByIP = ip
	user.PasswordChangedByUserAgent = userAgent

	if err := s.users.Update(ctx, user); err != nil {
		return upstream(err)
	}
	return nil
}

// MatchPassword reports whether candidate is the user's password.
func (s *TokenService) MatchPassword(user *domain.User, candidate string) bool {
	return s.MatchSecret(user.PasswordHash, user.PasswordSalt, candidate)
}

// HashSecret hashes secret with a freshly generated salt.
func (s *TokenService) HashSecret(secret string) (hash, salt string, err error) {
	salt, err = randomString(saltLength, alphanumeric)
	if err != nil {
		return "", "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret+salt), s.cfg.HashCost)
	if err != nil {
		return "", "", fmt.Errorf("hash secret: %w", err)
	}
	return string(b), salt, nil
}

// MatchSecret compares candidate+salt against hash.
func (s *TokenService) MatchSecret(hash, salt, candidate string) bool {
	if hash == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate+salt)) == nil
}

// IssueOneTimePassword stores a hashed numeric one-time password on the user
// and returns the plain code.
func (s *TokenService) IssueOneTimePassword(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", upstream(err)
	}

	code, err := randomString(otpLength, digits)
	if err != nil {
		return "", domain.Upstream(err)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.HashCost)
	if err != nil {
		return "", domain.Upstream(fmt.Errorf("hash one-time password: %w", err))
	}

	user.OneTimePasswordHash = string(b)
	user.OneTimePasswordExpireAt = s.now().UTC().Add(s.cfg.OTPExpireIn)
	if err := s.users.Update(ctx, user); err != nil {
		return "", upstream(err)
	}
	return code, nil
}

// MatchOneTimePassword reports whether code is the user's unexpired
// one-time password.
func (s *TokenService) MatchOneTimePassword(user *domain.User, code string) bool {
	if user.OneTimePasswordHash == "" || code == "" {
		return false
	}
	if !s.now().Before(user.OneTimePasswordExpireAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.OneTimePasswordHash), []byte(code)) == nil
}

// Sessions lists the tokens of a user.
func (s *TokenService) Sessions(ctx context.Context, userID string) ([]domain.Token, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, upstream(err)
	}
	tokens := make([]domain.Token, 0, len(user.Tokens))
	for _, t := range user.Tokens {
		t.UserID = user.ID
		tokens = append(tokens, t)
	}
	return tokens, nil
}
