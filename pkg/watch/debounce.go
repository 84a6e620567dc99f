package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces a burst of change events into one regeneration. The
// callback receives the number of events folded into that run.
type Debouncer struct {
	window time.Duration
	fn     func(changes int)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every Trigger; stale timers compare against it
	changes int
}

// NewDebouncer creates a debouncer that runs fn once window has passed
// without another Trigger.
func NewDebouncer(window time.Duration, fn func(changes int)) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger records one change and restarts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.changes++
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// Pending reports whether changes are waiting for the window to close.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changes > 0
}

// Flush runs the callback now if changes are pending, so nothing recorded is
// lost on shutdown. It blocks until the callback returns.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.mu.Unlock()
	d.fire(gen)
}

// Stop drops pending changes without running the callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.changes = 0
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.changes == 0 {
		d.mu.Unlock()
		return
	}
	n := d.changes
	d.changes = 0
	d.mu.Unlock()

	d.fn(n)
}
