package saved

import (
	"context"
	"sort"
	"sync"
)

// InMemory implements Store for tests and DSN-less runs.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]Item
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty bookmark store.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]Item)}
}

func (s *InMemory) Create(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

func (s *InMemory) ListByUser(ctx context.Context, userID string, limit int) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Item
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.UserID != userID {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *InMemory) DeleteByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if item.UserID == userID {
			delete(s.items, id)
		}
	}
	return nil
}
