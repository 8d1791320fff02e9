package watcher

import (
	"sync"
	"time"
)

// Debouncer collects events until a quiet period has passed, then emits
// them as one batch. Every Add resets the timer, so a burst of changes
// (an editor save-all, a branch switch) produces a single emission.
type Debouncer struct {
	delay  time.Duration
	emit   func([]Event)
	mu     sync.Mutex
	timer  *time.Timer
	events []Event
}

// NewDebouncer creates a debouncer that delivers batches to emit.
func NewDebouncer(delay time.Duration, emit func([]Event)) *Debouncer {
	return &Debouncer{
		delay: delay,
		emit:  emit,
	}
}

// Add queues an event and resets the quiet-period timer.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = append(d.events, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// fire emits the collected batch.
func (d *Debouncer) fire() {
	d.mu.Lock()
	events := d.events
	d.events = nil
	d.timer = nil
	d.mu.Unlock()

	if len(events) > 0 && d.emit != nil {
		d.emit(events)
	}
}

// Cancel drops any pending events without emitting them.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.events = nil
}

// Flush emits any pending events immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.fire()
}

// Pending returns the number of events waiting to be emitted.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}
