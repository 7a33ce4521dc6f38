package ports

import (
	"context"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// ClientRepository persists API clients.
type ClientRepository interface {
	Insert(ctx context.Context, client *domain.Client) (*domain.Client, error)
	FindByID(ctx context.Context, id string) (*domain.Client, error)
	UpdateSecret(ctx context.Context, id, secretHash, secretSalt string) error
}
