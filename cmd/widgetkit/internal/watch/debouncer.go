// Package watch rebuilds widget units as their sources change.
package watch

import (
	"sync"
	"time"
)

// MaxPending is the maximum number of targets that can be pending.
// Reaching it triggers an immediate flush so a burst of file creation
// cannot grow the pending set without bound.
const MaxPending = 1000

// Debouncer coalesces rapid change events into batches of targets (unit
// names, or AllUnits). Saving several files at once, or a formatter
// rewriting a tree, then costs one rebuild instead of many.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(targets []string)
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration.
// onFlush receives the affected targets once the window passes with no
// new events.
func NewDebouncer(window time.Duration, onFlush func(targets []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change to target and restarts the window.
func (d *Debouncer) Add(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[target] = struct{}{}

	if len(d.pending) >= MaxPending {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		d.flushLocked()
		return
	}

	// timer.Stop() may return false if the timer already fired; the queued
	// flush then finds an empty or fresh pending set, which is fine.
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked()
}

// flushLocked hands the pending targets to onFlush.
// Caller must hold d.mu; it is released while onFlush runs.
func (d *Debouncer) flushLocked() {
	if d.stopped || len(d.pending) == 0 {
		return
	}

	targets := d.takeLocked()

	d.mu.Unlock()
	if d.onFlush != nil {
		d.onFlush(targets)
	}
	d.mu.Lock()
}

// takeLocked returns and clears the pending targets. Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	targets := make([]string, 0, len(d.pending))
	for target := range d.pending {
		targets = append(targets, target)
	}
	d.pending = make(map[string]struct{})
	return targets
}

// FlushNow flushes pending targets without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	targets := d.takeLocked()
	d.mu.Unlock()

	if d.onFlush != nil {
		d.onFlush(targets)
	}
}

// Stop stops the debouncer. Pending targets are dropped: a watch session
// that is shutting down should not start a build.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]struct{})
}

// PendingCount returns the number of targets waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
