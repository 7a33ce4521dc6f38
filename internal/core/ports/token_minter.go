package ports

// TokenMinter produces access-token strings and cheaply rejects strings it
// could not have produced.
type TokenMinter interface {
	Mint(userID string) (string, error)
	// Recognize returns false for a token with a bad format or signature.
	// It does not judge expiry; the stored token does.
	Recognize(token string) bool
}
