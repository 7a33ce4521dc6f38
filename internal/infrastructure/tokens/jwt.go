// Package tokens produces the access-token strings handed to callers.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/serendip/gatekeeper/internal/core/ports"
)

const issuer = "gatekeeper"

// JWTMinter signs access tokens as HS256 JWTs. Each token carries a random
// jti so two tokens minted for the same user in the same second differ.
//
// The signature only proves the token came from this service; whether it
// is still valid is decided by the stored token.
type JWTMinter struct {
	secret []byte
	now    func() time.Time
}

var _ ports.TokenMinter = (*JWTMinter)(nil)

func NewJWTMinter(secret string) (*JWTMinter, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTMinter{secret: []byte(secret), now: time.Now}, nil
}

func (m *JWTMinter) Mint(userID string) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Subject:  userID,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(m.now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Recognize checks format, algorithm and signature only.
func (m *JWTMinter) Recognize(token string) bool {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return err == nil && parsed.Valid
}
