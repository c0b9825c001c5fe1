package registry

import (
	"context"
	"sort"
	"sync"
)

// OwnerEmails resolves owner ids to emails for the GetByID join. The auth
// store satisfies this.
type OwnerEmails interface {
	EmailByID(ctx context.Context, userID string) (string, error)
}

// InMemory implements Store with in-process concurrency safety. Used by
// tests and when the server runs without a database DSN.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[string]Record
	emails OwnerEmails
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store. emails may be nil; records then carry
// no owner email.
func NewInMemory(emails OwnerEmails) *InMemory {
	return &InMemory{byID: make(map[string]Record), emails: emails}
}

func (s *InMemory) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return ErrConflict
	}
	s.byID[rec.ID] = rec
	return nil
}

func (s *InMemory) GetByID(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	rec, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.emails != nil {
		email, err := s.emails.EmailByID(ctx, rec.OwnerID)
		if err == nil {
			rec.OwnerEmail = email
		}
	}
	return rec, nil
}

func (s *InMemory) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.byID {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) DeleteByOwner(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.byID {
		if rec.OwnerID == ownerID {
			delete(s.byID, id)
		}
	}
	return nil
}

func (s *InMemory) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}
