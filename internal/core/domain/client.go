package domain

import "time"

// Client is a registered API client that can obtain tokens with the
// client-credentials grant on behalf of its owner.
type Client struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	SecretHash string    `json:"-"`
	SecretSalt string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
