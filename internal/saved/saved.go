// Package saved implements bookmark saving under a monthly tier quota.
package saved

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"death2data.org/internal/ids"
	"death2data.org/internal/usage"
)

var (
	ErrNotFound     = errors.New("saved: not found")
	ErrInvalidInput = errors.New("saved: title and url are required")
)

// QuotaExceededError reports a denied save with the numeric monthly limit.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly limit reached (%d saves)", e.Limit)
}

// Item is one saved bookmark.
type Item struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists bookmarks.
type Store interface {
	Create(ctx context.Context, item Item) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Item, error)
	// Delete removes one bookmark owned by the user, or ErrNotFound.
	Delete(ctx context.Context, userID, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// Service gates saves behind the monthly quota.
type Service struct {
	store Store
	meter *usage.Meter
	now   func() time.Time
}

// NewService constructs the save service.
func NewService(store Store, meter *usage.Meter) *Service {
	return &Service{store: store, meter: meter, now: time.Now}
}

// Save stores a bookmark after atomically reserving one monthly quota unit.
func (s *Service) Save(ctx context.Context, userID, tier, title, url, snippet string) (Item, error) {
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" {
		return Item{}, ErrInvalidInput
	}

	ok, limit, err := s.meter.Reserve(ctx, userID, tier, usage.ActionSaves)
	if err != nil {
		return Item{}, err
	}
	if !ok {
		return Item{}, &QuotaExceededError{Limit: limit}
	}

	item := Item{
		ID:        ids.NewContentID(),
		UserID:    userID,
		Title:     title,
		URL:       url,
		Snippet:   snippet,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, item); err != nil {
		_ = s.meter.Release(ctx, userID, usage.ActionSaves)
		return Item{}, err
	}
	return item, nil
}

// List returns the user's bookmarks, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Item, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// Delete removes one bookmark. Deleting does not return quota; the counter
// tracks successful saves per period, not live rows.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.Delete(ctx, userID, id)
}

// DeleteByUser removes all bookmarks as part of account deletion.
func (s *Service) DeleteByUser(ctx context.Context, userID string) error {
	return s.store.DeleteByUser(ctx, userID)
}
