package platform

import (
	"sort"
	"sync"
)

// Source delivers layout change signals.
type Source interface {
	// Subscribe registers onEvent. It may be called on any goroutine.
	Subscribe(onEvent func()) (Subscription, error)
}

// Subscription is a registration with a Source.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe() error
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func() error

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() error {
	return f()
}

// subscribers is the handler set shared by all sources.
type subscribers struct {
	mu       sync.Mutex
	handlers map[uint64]func()
	nextID   uint64
}

// add registers fn and returns its id and whether it is the first handler.
func (s *subscribers) add(fn func()) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[uint64]func())
	}
	s.nextID++
	s.handlers[s.nextID] = fn
	return s.nextID, len(s.handlers) == 1
}

// remove drops id and returns whether it was the last handler.
// removed is false if id was already gone.
func (s *subscribers) remove(id uint64) (removed, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[id]; !ok {
		return false, false
	}
	delete(s.handlers, id)
	return true, len(s.handlers) == 0
}

func (s *subscribers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// fire calls every handler in subscription order outside the lock.
func (s *subscribers) fire() int {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]func(), len(ids))
	for i, id := range ids {
		handlers[i] = s.handlers[id]
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
	return len(handlers)
}
