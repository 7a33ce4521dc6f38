package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// hardStops are checked in order before any restriction rule.
var hardStops = []struct {
	group string
	err   error
}{
	{domain.GroupBlocked, domain.ErrUserBlocked},
	{domain.GroupEmailNotConfirmed, domain.ErrEmailNotConfirmed},
	{domain.GroupMobileNotConfirmed, domain.ErrMobileNotConfirmed},
	{domain.GroupNotConfirmed, domain.ErrUserNotConfirmed},
}

// Guard authenticates the caller of a non-public operation and applies the
// restriction rules to it.
type Guard struct {
	tokens ports.TokenService
	users  ports.UserRepository
	rules  ports.RestrictionService
	log    zerolog.Logger
}

var _ ports.Guard = (*Guard)(nil)

func NewGuard(tokens ports.TokenService, users ports.UserRepository, rules ports.RestrictionService, log zerolog.Logger) *Guard {
	return &Guard{tokens: tokens, users: users, rules: rules, log: log}
}

// Authorize returns the principal for in, or nil for a public operation.
func (g *Guard) Authorize(ctx context.Context, in ports.AuthorizeInput) (*ports.Principal, error) {
	if in.Public {
		return nil, nil
	}

	accessToken := in.BodyToken
	if accessToken == "" {
		accessToken = bearer(in.Authorization)
	}
	if accessToken == "" {
		return nil, domain.ErrMissingToken
	}

	token, err := g.tokens.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := g.users.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, upstream(err)
	}

	for _, stop := range hardStops {
		if user.InGroup(stop.group) {
			return nil, stop.err
		}
	}

	if err := g.rules.Evaluate(user, in.ControllerName, in.Endpoint); err != nil {
		g.log.Debug().
			Str("user_id", user.ID).
			Str("controller", in.ControllerName).
			Str("endpoint", in.Endpoint).
			Msg("restriction rule denied access")
		return nil, err
	}

	return &ports.Principal{User: user, Token: *token}, nil
}

// bearer extracts the credential of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
