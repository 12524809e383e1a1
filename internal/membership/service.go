package membership

import (
	"context"

	"github.com/google/uuid"

	"schoollib/internal/auth"
)

// Service defines the interface for the account store.
type Service interface {
	// Register is the rate-limited self-service path.
	Register(ctx context.Context, candidate NewUser) (*User, error)
	CreateUser(ctx context.Context, candidate NewUser) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	// GetUsers loads several accounts at once; missing ids are absent.
	GetUsers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, f Filter) ([]User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (*Stats, error)
	BulkCreate(ctx context.Context, candidates []NewUser) (*BulkResult, error)
	// Exists reports whether username or email is already taken.
	Exists(ctx context.Context, username, email string) (bool, error)
	LoadPrincipal(ctx context.Context, id uuid.UUID) (auth.Principal, error)
}
