// Package delay provides a debounced action trigger: a later call before
// the pending action fires replaces both the action and its delay.
package delay

import (
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Delayer debounces a single pending action, even across calls made with
// different delays. bep/debounce's own closure fixes its interval at
// construction, so each call builds a fresh one; a generation counter
// suppresses any earlier closure's fire once a newer call has
// superseded it, giving "replaces both the pending action and the
// delay" semantics on top of the library's per-call cancellation. The
// counter is read and written from both the caller's goroutine and
// bep/debounce's timer goroutine, so a mutex guards it.
type Delayer struct {
	defaultDelay time.Duration

	mu         sync.Mutex
	generation int
}

// New constructs a Delayer whose Trigger uses defaultDelayMs when no
// explicit delay is given.
func New(defaultDelayMs int) *Delayer {
	return &Delayer{defaultDelay: time.Duration(defaultDelayMs) * time.Millisecond}
}

// Trigger schedules action to run after the Delayer's default delay.
func (d *Delayer) Trigger(action func()) {
	d.TriggerAfter(d.defaultDelay, action)
}

// TriggerAfter schedules action to run after delay. Any action (from
// Trigger or TriggerAfter) still pending is dropped, regardless of its
// own delay.
func (d *Delayer) TriggerAfter(delay time.Duration, action func()) {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.mu.Unlock()

	debounced := debounce.New(delay)
	debounced(func() {
		d.mu.Lock()
		current := gen == d.generation
		d.mu.Unlock()
		if current {
			action()
		}
	})
}
