package platform

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls into one callback after a quiet
// period. Configuration tools typically rewrite a layout file several times
// in a row (truncate, write, rename); only the settled state matters.
//
// The callback never runs concurrently with itself.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	pending  bool
	seq      uint64 // detects stale timer callbacks
	callback func()

	runMu sync.Mutex
}

// NewDebouncer creates a debouncer. A delay of zero runs the callback
// synchronously on every Call.
func NewDebouncer(delay time.Duration, callback func()) *Debouncer {
	return &Debouncer{
		delay:    delay,
		callback: callback,
	}
}

// Call schedules the callback to run once no call has arrived for the
// debounce delay.
func (d *Debouncer) Call() {
	if d.delay <= 0 {
		d.run()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if !d.pending || d.seq != currentSeq {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.mu.Unlock()
		d.run()
	})
}

func (d *Debouncer) run() {
	if d.callback == nil {
		return
	}
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.callback()
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// IsPending returns true if a call is scheduled.
func (d *Debouncer) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
