package metrics

import (
	"time"

	"github.com/dshills/kblayout/internal/callback"
	"github.com/dshills/kblayout/internal/dispatch"
	"github.com/dshills/kblayout/internal/listener"
	"github.com/dshills/kblayout/internal/notify"
)

var (
	_ dispatch.Observer = (*Metrics)(nil)
	_ callback.Observer = (*Metrics)(nil)
	_ notify.Observer   = (*Metrics)(nil)
	_ listener.Observer = (*Metrics)(nil)
)

// Enqueued implements dispatch.Observer.
func (m *Metrics) Enqueued() {
	m.enqueued.Inc()
}

// Executed implements dispatch.Observer.
func (m *Metrics) Executed(time.Duration) {
	m.executions.Inc()
}

// Dropped implements dispatch.Observer.
func (m *Metrics) Dropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// Skipped implements callback.Observer.
func (m *Metrics) Skipped(string) {
	m.dropped.WithLabelValues(DropFinalized).Inc()
}

// DispatchFailed implements callback.Observer. The drop itself is
// already counted by the loop.
func (m *Metrics) DispatchFailed(err error) {
	m.dispatchErrors.WithLabelValues(errorLabel(err)).Inc()
}

// Delivered implements callback.Observer.
func (m *Metrics) Delivered(d time.Duration) {
	m.delivered.Inc()
	m.deliverySeconds.Observe(d.Seconds())
}

// Registered implements notify.Observer.
func (m *Metrics) Registered() {
	m.registrations.Inc()
	m.activeCallbacks.Inc()
}

// Finalized implements notify.Observer.
func (m *Metrics) Finalized() {
	m.finalizations.Inc()
	m.activeCallbacks.Dec()
}

// PlatformEvent implements listener.Observer.
func (m *Metrics) PlatformEvent(delivered bool) {
	m.platformEvents.Inc()
	if !delivered {
		m.dropped.WithLabelValues(DropOrphaned).Inc()
	}
}
