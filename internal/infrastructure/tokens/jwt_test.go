package tokens

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTMinter_MintAndRecognize(t *testing.T) {
	m, err := NewJWTMinter("s3cret")
	if err != nil {
		t.Fatalf("NewJWTMinter: %v", err)
	}

	a, err := m.Mint("u1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	b, _ := m.Mint("u1")

	if a == b {
		t.Fatal("two mints for the same user must differ")
	}
	if !m.Recognize(a) || !m.Recognize(b) {
		t.Fatal("minted tokens must be recognized")
	}
}

func TestJWTMinter_RejectsForeignTokens(t *testing.T) {
	m, _ := NewJWTMinter("s3cret")
	other, _ := NewJWTMinter("another")

	foreign, _ := other.Mint("u1")
	own, _ := m.Mint("u1")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1", Issuer: issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"other secret": foreign,
		"garbage":      "not-a-token",
		"empty":        "",
		"tampered":     tamper(own),
		"alg none":     none,
	}
	for name, tok := range cases {
		if m.Recognize(tok) {
			t.Errorf("%s: token should not be recognized", name)
		}
	}
}

// tamper flips the first signature character.
func tamper(token string) string {
	i := strings.LastIndex(token, ".") + 1
	repl := "A"
	if token[i] == 'A' {
		repl = "B"
	}
	return token[:i] + repl + token[i+1:]
}

func TestNewJWTMinter_EmptySecret(t *testing.T) {
	if _, err := NewJWTMinter(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
