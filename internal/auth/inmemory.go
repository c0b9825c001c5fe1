package auth

import (
	"context"
	"sync"
)

// InMemory implements Store for tests and DSN-less runs.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string // email -> id
	byHash  map[string]string // token hash -> id
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty user store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		byHash:  make(map[string]string),
	}
}

func (s *InMemory) CreateUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[u.Email]; exists {
		return ErrAlreadyExists
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	s.byHash[u.TokenHash] = u.ID
	return nil
}

func (s *InMemory) UserByID(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) UserByTokenHash(ctx context.Context, tokenHash string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *InMemory) EmailByID(ctx context.Context, id string) (string, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (s *InMemory) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, u.Email)
	delete(s.byHash, u.TokenHash)
	return nil
}

func (s *InMemory) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}
