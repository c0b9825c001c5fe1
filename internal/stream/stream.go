// Package stream fan-outs registration events to SSE subscribers, feeding
// the public activity surface.
package stream

import (
	"context"
	"sync"
	"time"
)

// RegistrationEvent describes one completed registration. Only public facts
// are carried; no owner identity and no file path.
type RegistrationEvent struct {
	UUID      string    `json:"uuid"`
	Filename  string    `json:"filename"`
	License   string    `json:"license"`
	Auto      bool      `json:"auto_registered"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan RegistrationEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan RegistrationEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan RegistrationEvent {
	ch := make(chan RegistrationEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt RegistrationEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
