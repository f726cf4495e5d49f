package platform

import (
	"sync"
	"sync/atomic"
)

// ManualSource fires only when Fire is called.
type ManualSource struct {
	subs subscribers

	subscribeCalls atomic.Int64
	fired          atomic.Int64

	mu  sync.Mutex
	err error
}

// NewManualSource creates a manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// FailWith makes subsequent Subscribe calls fail with err; nil restores
// normal behavior.
func (m *ManualSource) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Subscribe implements Source.
func (m *ManualSource) Subscribe(onEvent func()) (Subscription, error) {
	if onEvent == nil {
		return nil, ErrNilHandler
	}
	m.subscribeCalls.Add(1)

	m.mu.Lock()
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	id, _ := m.subs.add(onEvent)
	return SubscriptionFunc(func() error {
		m.subs.remove(id)
		return nil
	}), nil
}

// Fire delivers one event to every subscriber on the calling goroutine and
// returns how many subscribers were called.
func (m *ManualSource) Fire() int {
	m.fired.Add(1)
	return m.subs.fire()
}

// Subscribers returns the number of active subscriptions.
func (m *ManualSource) Subscribers() int {
	return m.subs.len()
}

// SubscribeCalls returns how many times Subscribe was called.
func (m *ManualSource) SubscribeCalls() int64 {
	return m.subscribeCalls.Load()
}

// Fired returns how many times Fire was called.
func (m *ManualSource) Fired() int64 {
	return m.fired.Load()
}
