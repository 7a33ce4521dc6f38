package ports

import (
	"context"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// UserRepository persists users and their embedded token lists. Lookups
// return domain.ErrUserNotFound on a miss.
type UserRepository interface {
	// Insert stores a new user and returns it with its assigned ID. Unique
	// violations map to domain.ErrUsernameTaken, ErrEmailTaken or
	// ErrMobileTaken.
	Insert(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByMobile(ctx context.Context, mobile string) (*domain.User, error)
	// FindByAccessToken returns the user whose token list holds accessToken.
	FindByAccessToken(ctx context.Context, accessToken string) (*domain.User, error)
	// Update writes every field of user except its token list.
	Update(ctx context.Context, user *domain.User) error
	// AppendToken atomically appends token to the owner's token list.
	AppendToken(ctx context.Context, userID string, token domain.Token) error
	AddGroup(ctx context.Context, userID, group string) error
	RemoveGroup(ctx context.Context, userID, group string) error
}
