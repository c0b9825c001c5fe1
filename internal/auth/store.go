package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByID(ctx context.Context, id string) (User, error)
	UserByTokenHash(ctx context.Context, tokenHash string) (User, error)
	EmailByID(ctx context.Context, id string) (string, error)
	// DeleteUser removes the account row. Owned records, saves and usage
	// counters cascade at the storage layer or are removed by the caller.
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)
}
