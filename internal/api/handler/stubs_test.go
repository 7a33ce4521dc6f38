package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/api/route"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// stubAccounts records the last call per operation and returns canned values.
type stubAccounts struct {
	register    ports.RegisterInput
	login       ports.LoginInput
	clientToken [2]string
	contact     ports.ContactInput
	reset       ports.ResetPasswordInput
	change      ports.ChangePasswordInput
	group       [2]string
	otp         ports.OneTimePasswordInput
	err         error
}

func (s *stubAccounts) Register(_ context.Context, in ports.RegisterInput) (*domain.User, error) {
	s.register = in
	if s.err != nil {
		return nil, s.err
	}
	return &domain.User{ID: "u1", Username: domain.NormalizeUsername(in.Username)}, nil
}

func (s *stubAccounts) Login(_ context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	s.login = in
	if s.err != nil {
		return nil, s.err
	}
	grant := domain.GrantPassword
	if in.OneTimePassword != "" {
		grant = domain.GrantOneTime
	}
	return &ports.LoginResult{Token: domain.Token{AccessToken: "tok-1", GrantType: grant}, Username: in.Username}, nil
}

func (s *stubAccounts) CreateClient(_ context.Context, owner *domain.User, name, _ string) (*domain.Client, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Client{ID: "c1", Name: name, Owner: owner.ID}, nil
}

func (s *stubAccounts) ClientToken(_ context.Context, clientID, secret, _ string) (*domain.Token, error) {
	s.clientToken = [2]string{clientID, secret}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Token{AccessToken: "tok-c", GrantType: domain.GrantClientCredentials, ClientID: clientID}, nil
}

func (s *stubAccounts) ChangeClientSecret(context.Context, *domain.User, string, string) error {
	return s.err
}

func (s *stubAccounts) SendPasswordResetToken(_ context.Context, in ports.ContactInput) error {
	s.contact = in
	if in.Email == "" && in.Mobile == "" {
		return domain.ErrEmailOrMobileMissing
	}
	return s.err
}

func (s *stubAccounts) ResetPassword(_ context.Context, in ports.ResetPasswordInput) error {
	s.reset = in
	return s.err
}

func (s *stubAccounts) ChangePassword(_ context.Context, in ports.ChangePasswordInput) error {
	s.change = in
	return s.err
}

func (s *stubAccounts) AddUserToGroup(_ context.Context, userID, group string) error {
	s.group = [2]string{userID, group}
	return s.err
}

func (s *stubAccounts) DeleteUserFromGroup(_ context.Context, userID, group string) error {
	s.group = [2]string{userID, group}
	return s.err
}

func (s *stubAccounts) SendVerifyEmail(_ context.Context, email string) (*domain.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Delivery{Channel: domain.ChannelEmail, To: email}, nil
}

func (s *stubAccounts) VerifyEmail(context.Context, string, string) error { return s.err }

func (s *stubAccounts) SendVerifySms(_ context.Context, mobile string) (*domain.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Delivery{Channel: domain.ChannelSMS, To: mobile}, nil
}

func (s *stubAccounts) VerifyMobile(context.Context, string, string) error { return s.err }

func (s *stubAccounts) SendOneTimePassword(_ context.Context, in ports.OneTimePasswordInput) error {
	s.otp = in
	return s.err
}

// stubTokens implements the token operations the controller calls.
type stubTokens struct {
	ports.TokenService
	tokens map[string]domain.Token
}

func (s *stubTokens) Validate(_ context.Context, accessToken string) (*domain.Token, error) {
	t, ok := s.tokens[accessToken]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &t, nil
}

func (s *stubTokens) Refresh(_ context.Context, accessToken, refreshToken, ua string) (*domain.Token, error) {
	t, ok := s.tokens[accessToken]
	if !ok {
		return nil, domain.ErrInvalidAccessToken
	}
	if t.RefreshToken != refreshToken {
		return nil, domain.ErrInvalidRefreshToken
	}
	return &domain.Token{AccessToken: "tok-new", GrantType: domain.GrantPassword, UserAgent: ua}, nil
}

func (s *stubTokens) Sessions(_ context.Context, userID string) ([]domain.Token, error) {
	var out []domain.Token
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// stubRules is an in-memory restriction service.
type stubRules struct {
	rules      map[domain.RuleKey]domain.RestrictionRule
	refreshErr error
	refreshed  int
}

func newStubRules() *stubRules {
	return &stubRules{rules: map[domain.RuleKey]domain.RestrictionRule{}}
}

func (s *stubRules) Evaluate(*domain.User, string, string) error { return nil }

func (s *stubRules) Refresh(context.Context) error {
	s.refreshed++
	return s.refreshErr
}

func (s *stubRules) Rules() []domain.RestrictionRule {
	out := make([]domain.RestrictionRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out
}

func (s *stubRules) Upsert(_ context.Context, rule domain.RestrictionRule) error {
	s.rules[rule.Key()] = rule
	return nil
}

func (s *stubRules) Remove(_ context.Context, key domain.RuleKey) error {
	if _, ok := s.rules[key]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(s.rules, key)
	return nil
}

// call runs the named endpoint of ctrl against a JSON body.
func call(t *testing.T, ctrl route.Controller, endpoint, body string, user *domain.User) (pipeline.Outcome, error) {
	t.Helper()

	var ep *route.Endpoint
	for i := range ctrl.Endpoints {
		if ctrl.Endpoints[i].Name == endpoint {
			ep = &ctrl.Endpoints[i]
		}
	}
	if ep == nil {
		t.Fatalf("endpoint %s not declared", endpoint)
	}

	fields := map[string]any{}
	if body != "" {
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			t.Fatalf("bad test body: %v", err)
		}
	}
	req := &pipeline.Request{
		Method:    ep.Method,
		Path:      route.Path(ctrl.Prefix, ctrl.Name, ep.Name),
		Header:    http.Header{},
		Body:      []byte(body),
		Fields:    fields,
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	}
	c := &pipeline.Context{Request: req.WithContext(context.Background()), User: user}
	return pipeline.Run(c, ep.Stages...)
}
