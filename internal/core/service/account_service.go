package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const verificationCodeLength = 6

// AccountConfig holds the account policy settings.
type AccountConfig struct {
	EmailConfirmationRequired  bool
	MobileConfirmationRequired bool
	DefaultCountryCode         string
	// SendInterval is the minimum gap between two verification or one-time
	// password messages to the same address.
	SendInterval time.Duration
}

// AccountDeps are the collaborators of an AccountService.
type AccountDeps struct {
	Users    ports.UserRepository
	Clients  ports.ClientRepository
	Tokens   ports.TokenService
	Notifier ports.Notifier
	Queue    ports.NotificationQueue
	Throttle ports.Throttle
}

// AccountService implements registration, login grants, password recovery,
// verification and group membership.
type AccountService struct {
	users    ports.UserRepository
	clients  ports.ClientRepository
	tokens   ports.TokenService
	notifier ports.Notifier
	queue    ports.NotificationQueue
	throttle ports.Throttle
	cfg      AccountConfig
	now      func() time.Time
	log      zerolog.Logger
}

var _ ports.AccountService = (*AccountService)(nil)

func NewAccountService(deps AccountDeps, cfg AccountConfig, log zerolog.Logger) *AccountService {
	if cfg.DefaultCountryCode == "" {
		cfg.DefaultCountryCode = "+98"
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = time.Minute
	}
	return &AccountService{
		users:    deps.Users,
		clients:  deps.Clients,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		queue:    deps.Queue,
		throttle: deps.Throttle,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the time source.
func (s *AccountService) WithClock(now func() time.Time) *AccountService {
	s.now = now
	return s
}

// Register creates a user. Username uniqueness is enforced by the store, so
// concurrent registrations of one name yield exactly one success.
func (s *AccountService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	mobile := nationalNumber(in.Mobile)

	if email != "" {
		if err := s.ensureFree(ctx, s.users.FindByEmail, email, domain.ErrEmailTaken); err != nil {
			return nil, err
		}
	}
	if mobile != "" {
		if err := s.ensureFree(ctx, s.users.FindByMobile, mobile, domain.ErrMobileTaken); err != nil {
			return nil, err
		}
	}

	hash, salt, err := s.tokens.HashSecret(in.Password)
	if err != nil {
		return nil, domain.Upstream(err)
	}

	now := s.now().UTC()
	user := &domain.User{
		Username:                   domain.NormalizeUsername(in.Username),
		Email:                      email,
		Mobile:                     mobile,
		Groups:                     []string{},
		PasswordHash:               hash,
		PasswordSalt:               salt,
		RegisteredAt:               now,
		RegisteredByIP:             in.IP,
		RegisteredByUserAgent:      in.UserAgent,
		PasswordChangedAt:          now,
		PasswordChangedByIP:        in.IP,
		PasswordChangedByUserAgent: in.UserAgent,
	}
	if mobile != "" {
		user.MobileCountryCode = s.cfg.DefaultCountryCode
	}

	// The user is stored complete in one write; a failure leaves nothing behind.
	created, err := s.users.Insert(ctx, user)
	if err != nil {
		return nil, upstream(err)
	}

	s.log.Info().Str("user_id", created.ID).Str("username", created.Username).Msg("user registered")
	return created, nil
}

func (s *AccountService) ensureFree(ctx context.Context, find func(context.Context, string) (*domain.User, error), value string, taken error) error {
	_, err := find(ctx, value)
	switch {
	case err == nil:
		return taken
	case errors.Is(err, domain.ErrUserNotFound):
		return nil
	default:
		return upstream(err)
	}
}

// Login runs the password grant. The user is looked up by username, then
// email, then mobile.
func (s *AccountService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	user, err := s.findForLogin(ctx, in)
	if err != nil {
		return nil, err
	}

	matchPassword := in.Password != "" && s.tokens.MatchPassword(user, in.Password)
	matchOTP := in.OneTimePassword != "" && s.tokens.MatchOneTimePassword(user, in.OneTimePassword)

	if user.TwoFactorEnabled {
		if in.Password == "" {
			return nil, domain.ErrPasswordRequired
		}
		if !matchPassword || !matchOTP {
			return nil, domain.ErrInvalidCredentials
		}
	} else if !matchPassword && !matchOTP {
		return nil, domain.ErrInvalidCredentials
	}

	grant := domain.GrantPassword
	if matchOTP {
		grant = domain.GrantOneTime
		if !user.MobileVerified {
			user.MobileVerified = true
			user.OneTimePasswordHash = ""
			if err := s.users.Update(ctx, user); err != nil {
				return nil, upstream(err)
			}
		}
	} else {
		if s.cfg.MobileConfirmationRequired && !user.MobileVerified {
			return nil, domain.ErrLoginMobileUnconfirmed
		}
		if s.cfg.EmailConfirmationRequired && !user.EmailVerified {
			return nil, domain.ErrLoginEmailUnconfirmed
		}
	}

	token, err := s.tokens.Issue(ctx, ports.IssueInput{
		UserID:    user.ID,
		UserAgent: in.UserAgent,
		GrantType: grant,
	})
	if err != nil {
		return nil, err
	}
	return &ports.LoginResult{Token: *token, Username: user.Username}, nil
}

func (s *AccountService) findForLogin(ctx context.Context, in ports.LoginInput) (*domain.User, error) {
	type lookup struct {
		find  func(context.Context, string) (*domain.User, error)
		value string
	}
	lookups := []lookup{
		{s.users.FindByUsername, domain.NormalizeUsername(in.Username)},
		{s.users.FindByEmail, strings.ToLower(strings.TrimSpace(in.Username))},
		{s.users.FindByMobile, nationalNumber(in.Mobile)},
		{s.users.FindByMobile, nationalNumber(in.Username)},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		user, err := l.find(ctx, l.value)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, upstream(err)
		}
	}
	return nil, domain.ErrInvalidCredentials
}

// nationalNumber is the stored and queried form of a mobile number: digits
// only, without leading zeros. It returns "" for input without digits.
func nationalNumber(mobile string) string {
	var b strings.Builder
	for _, r := range mobile {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// CreateClient registers an API client owned by owner.
func (s *AccountService) CreateClient(ctx context.Context, owner *domain.User, name, secret string) (*domain.Client, error) {
	hash, salt, err := s.tokens.HashSecret(secret)
	if err != nil {
		return nil, domain.Upstream(err)
	}
	client, err := s.clients.Insert(ctx, &domain.Client{
		Name:       name,
		Owner:      owner.ID,
		SecretHash: hash,
		SecretSalt: salt,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return nil, upstream(err)
	}
	return client, nil
}

// ClientToken runs the client-credentials grant and issues a token for the
// client's owner.
func (s *AccountService) ClientToken(ctx context.Context, clientID, secret, userAgent string) (*domain.Token, error) {
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, upstream(err)
	}
	if !s.tokens.MatchSecret(client.SecretHash, client.SecretSalt, secret) {
		return nil, domain.ErrClientSecretInvalid
	}
	return s.tokens.Issue(ctx, ports.IssueInput{
		UserID:    client.Owner,
		UserAgent: userAgent,
		ClientID:  client.ID,
		GrantType: domain.GrantClientCredentials,
	})
}

// ChangeClientSecret replaces the secret of a client owned by owner.
func (s *AccountService) ChangeClientSecret(ctx context.Context, owner *domain.User, clientID, secret string) error {
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return upstream(err)
	}
	if client.Owner != owner.ID {
		return domain.ErrClientOwnerRequired
	}
	hash, salt, err := s.tokens.HashSecret(secret)
	if err != nil {
		return domain.Upstream(err)
	}
	if err := s.clients.UpdateSecret(ctx, client.ID, hash, salt); err != nil {
		return upstream(err)
	}
	return nil
}

func (s *AccountService) findByContact(ctx context.Context, in ports.ContactInput) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	switch {
	case in.Email != "":
		user, err = s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	case in.Mobile != "":
		user, err = s.users.FindByMobile(ctx, nationalNumber(in.Mobile))
	default:
		return nil, domain.ErrEmailOrMobileMissing
	}
	if err != nil {
		return nil, upstream(err)
	}
	return user, nil
}

// SendPasswordResetToken issues a reset code and queues its delivery to the
// address the user was found by.
func (s *AccountService) SendPasswordResetToken(ctx context.Context, in ports.ContactInput) error {
	user, err := s.findByContact(ctx, in)
	if err != nil {
		return err
	}

	code, err := s.tokens.IssuePasswordResetToken(ctx, user.ID)
	if err != nil {
		return err
	}

	data := map[string]any{"username": user.Username, "code": code}
	if in.Email != "" {
		s.queue.Enqueue(domain.Notification{
			Channel:  domain.ChannelEmail,
			To:       user.Email,
			Subject:  "Password reset",
			Template: "passwordreset",
			Data:     data,
		})
	} else {
		s.queue.Enqueue(domain.Notification{
			Channel: domain.ChannelSMS,
			To:      user.MobileCountryCode + user.Mobile,
			Text:    fmt.Sprintf("password reset code: %s", code),
			Data:    data,
		})
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset token issued")
	return nil
}

// ResetPassword redeems a reset code and sets the new password.
func (s *AccountService) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) error {
	user, err := s.findByContact(ctx, in.ContactInput)
	if err != nil {
		return err
	}
	if err := s.tokens.RedeemPasswordResetToken(ctx, user, in.Code); err != nil {
		return err
	}
	return s.tokens.SetPassword(ctx, user.ID, in.Password, in.IP, in.UserAgent)
}

// ChangePassword sets the actor's password, or the target user's when the
// actor is an admin.
func (s *AccountService) ChangePassword(ctx context.Context, in ports.ChangePasswordInput) error {
	userID := in.Actor.ID
	if in.TargetUserID != "" && in.TargetUserID != in.Actor.ID {
		if !in.Actor.IsAdmin() {
			return domain.ErrAdminRequired
		}
		userID = in.TargetUserID
	}
	return s.tokens.SetPassword(ctx, userID, in.Password, in.IP, in.UserAgent)
}

func (s *AccountService) AddUserToGroup(ctx context.Context, userID, group string) error {
	if err := s.users.AddGroup(ctx, userID, group); err != nil {
		return upstream(err)
	}
	s.log.Info().Str("user_id", userID).Str("group", group).Msg("user added to group")
	return nil
}

func (s *AccountService) DeleteUserFromGroup(ctx context.Context, userID, group string) error {
	if err := s.users.RemoveGroup(ctx, userID, group); err != nil {
		return upstream(err)
	}
	s.log.Info().Str("user_id", userID).Str("group", group).Msg("user removed from group")
	return nil
}

func (s *AccountService) allowSend(ctx context.Context, key string) error {
	ok, err := s.throttle.Allow(ctx, key, s.cfg.SendInterval)
	if err != nil {
		return domain.Upstream(err)
	}
	if !ok {
		return domain.ErrSendThrottled
	}
	return nil
}

// SendVerifyEmail stores a fresh email verification code and mails it.
func (s *AccountService) SendVerifyEmail(ctx context.Context, email string) (*domain.Delivery, error) {
	user, err := s.findByContact(ctx, ports.ContactInput{Email: email})
	if err != nil {
		return nil, err
	}
	if err := s.allowSend(ctx, "verify:email:"+user.Email); err != nil {
		return nil, err
	}

	code, err := randomString(verificationCodeLength, digits)
	if err != nil {
		return nil, domain.Upstream(err)
	}
	user.EmailVerificationCode = code
	if err := s.users.Update(ctx, user); err != nil {
		return nil, upstream(err)
	}

	delivery, err := s.notifier.Send(ctx, domain.Notification{
		Channel:  domain.ChannelEmail,
		To:       user.Email,
		Subject:  "Verify your email",
		Template: "verifyemail",
		Data:     map[string]any{"username": user.Username, "code": code},
	})
	if err != nil {
		return nil, upstream(err)
	}
	return delivery, nil
}

// VerifyEmail marks the email verified when code matches.
func (s *AccountService) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.findByContact(ctx, ports.ContactInput{Email: email})
	if err != nil {
		return err
	}
	if user.EmailVerificationCode == "" || user.EmailVerificationCode != code {
		return domain.ErrInvalidCode
	}

	user.EmailVerified = true
	user.EmailVerificationCode = ""
	if err := s.users.Update(ctx, user); err != nil {
		return upstream(err)
	}
	return s.confirm(ctx, user, domain.GroupEmailNotConfirmed)
}

// SendVerifySms stores a fresh mobile verification code and texts it.
func (s *AccountService) SendVerifySms(ctx context.Context, mobile string) (*domain.Delivery, error) {
	user, err := s.findByContact(ctx, ports.ContactInput{Mobile: mobile})
	if err != nil {
		return nil, err
	}
	if err := s.allowSend(ctx, "verify:sms:"+user.Mobile); err != nil {
		return nil, err
	}

	code, err := randomString(verificationCodeLength, digits)
	if err != nil {
		return nil, domain.Upstream(err)
	}
	user.MobileVerificationCode = code
	if err := s.users.Update(ctx, user); err != nil {
		return nil, upstream(err)
	}

	delivery, err := s.notifier.Send(ctx, domain.Notification{
		Channel: domain.ChannelSMS,
		To:      user.MobileCountryCode + user.Mobile,
		Text:    fmt.Sprintf("verification code: %s", code),
	})
	if err != nil {
		return nil, upstream(err)
	}
	return delivery, nil
}

// VerifyMobile marks the mobile verified when code matches.
func (s *AccountService) VerifyMobile(ctx context.Context, mobile, code string) error {
	user, err := s.findByContact(ctx, ports.ContactInput{Mobile: mobile})
	if err != nil {
		return err
	}
	if user.MobileVerificationCode == "" || user.MobileVerificationCode != code {
		return domain.ErrInvalidCode
	}

	user.MobileVerified = true
	user.MobileVerificationCode = ""
	if err := s.users.Update(ctx, user); err != nil {
		return upstream(err)
	}
	return s.confirm(ctx, user, domain.GroupMobileNotConfirmed)
}

// confirm drops the pending-confirmation group, and the generic one once
// nothing else is pending.
func (s *AccountService) confirm(ctx context.Context, user *domain.User, group string) error {
	if user.InGroup(group) {
		if err := s.users.RemoveGroup(ctx, user.ID, group); err != nil {
			return upstream(err)
		}
	}
	pending := (group != domain.GroupEmailNotConfirmed && user.InGroup(domain.GroupEmailNotConfirmed)) ||
		(group != domain.GroupMobileNotConfirmed && user.InGroup(domain.GroupMobileNotConfirmed))
	if !pending && user.InGroup(domain.GroupNotConfirmed) {
		if err := s.users.RemoveGroup(ctx, user.ID, domain.GroupNotConfirmed); err != nil {
			return upstream(err)
		}
	}
	return nil
}

// SendOneTimePassword texts a one-time password, creating the user on first
// contact with the mobile number.
func (s *AccountService) SendOneTimePassword(ctx context.Context, in ports.OneTimePasswordInput) error {
	mobile := nationalNumber(in.Mobile)
	if mobile == "" {
		return domain.Validation("mobile required")
	}
	countryCode := in.CountryCode
	if countryCode == "" {
		countryCode = s.cfg.DefaultCountryCode
	}

	user, err := s.users.FindByMobile(ctx, mobile)
	if errors.Is(err, domain.ErrUserNotFound) {
		user, err = s.users.Insert(ctx, &domain.User{
			Username:              countryCode + mobile,
			Mobile:                mobile,
			MobileCountryCode:     countryCode,
			Groups:                []string{},
			RegisteredAt:          s.now().UTC(),
			RegisteredByIP:        in.IP,
			RegisteredByUserAgent: in.UserAgent,
		})
	}
	if err != nil {
		return upstream(err)
	}

	if err := s.allowSend(ctx, "otp:"+mobile); err != nil {
		return err
	}

	code, err := s.tokens.IssueOneTimePassword(ctx, user.ID)
	if err != nil {
		return err
	}

	if _, err := s.notifier.Send(ctx, domain.Notification{
		Channel: domain.ChannelSMS,
		To:      user.MobileCountryCode + user.Mobile,
		Text:    fmt.Sprintf("one-time password: %s", code),
	}); err != nil {
		return upstream(err)
	}
	return nil
}
