package registry

import "context"

// Store persists content records. Records are insert-only; no update
// operation exists anywhere in the registry.
type Store interface {
	// Create inserts the fully populated record. It fails with ErrConflict
	// only if the storage rejects the identifier as a duplicate key,
	// practically unreachable given UUID entropy.
	Create(ctx context.Context, rec Record) error
	// GetByID returns the record joined with its owner's email, or
	// ErrNotFound.
	GetByID(ctx context.Context, id string) (Record, error)
	// ListByOwner returns up to limit records ordered by registration time
	// descending.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error)
	// DeleteByOwner removes every record owned by the user. Invoked only as
	// part of account deletion.
	DeleteByOwner(ctx context.Context, ownerID string) error
	// Count returns the total number of registered records.
	Count(ctx context.Context) (int64, error)
}
