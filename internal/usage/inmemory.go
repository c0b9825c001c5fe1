package usage

import (
	"context"
	"strings"
	"sync"
)

// InMemory implements Ledger with in-process concurrency safety. Used by
// tests and when the server runs without a database DSN.
type InMemory struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ Ledger = (*InMemory)(nil)

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{counts: make(map[string]int)}
}

func key(userID, action, period string) string {
	return userID + "\x00" + action + "\x00" + period
}

func (l *InMemory) Count(ctx context.Context, userID, action, period string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[key(userID, action, period)], nil
}

func (l *InMemory) Record(ctx context.Context, userID, action, period string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key(userID, action, period)]++
	return nil
}

func (l *InMemory) Reserve(ctx context.Context, userID, action, period string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, action, period)
	if limit != Unlimited && l.counts[k] >= limit {
		return false, nil
	}
	l.counts[k]++
	return true, nil
}

func (l *InMemory) Release(ctx context.Context, userID, action, period string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, action, period)
	if l.counts[k] > 0 {
		l.counts[k]--
	}
	return nil
}

func (l *InMemory) DeleteUser(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := userID + "\x00"
	for k := range l.counts {
		if strings.HasPrefix(k, prefix) {
			delete(l.counts, k)
		}
	}
	return nil
}
