// Package telemetry converts raw amplitude and face-landmark samples into
// rolling-window delivery metrics.
package telemetry

import "time"

// windowEntry is one classified span of audio inside the rolling window.
type windowEntry struct {
	speaking bool
	duration time.Duration
}

// RollingWindow is an ordered queue of speech/silence spans bounded to a
// fixed time span. Entries are evicted oldest-first; the total duration never
// exceeds the span by more than one sample's duration.
type RollingWindow struct {
	span    time.Duration
	entries []windowEntry
	total   time.Duration
	speech  time.Duration
}

// NewRollingWindow returns an empty window bounded to the given span.
func NewRollingWindow(span time.Duration) *RollingWindow {
	return &RollingWindow{span: span}
}

// Push appends one classified span and evicts expired entries oldest-first.
func (w *RollingWindow) Push(speaking bool, d time.Duration) {
	if d <= 0 {
		return
	}
	w.entries = append(w.entries, windowEntry{speaking: speaking, duration: d})
	w.total += d
	if speaking {
		w.speech += d
	}

	// Evict while dropping the oldest entry still leaves a full window.
	for len(w.entries) > 1 && w.total-w.entries[0].duration >= w.span {
		oldest := w.entries[0]
		w.entries = w.entries[1:]
		w.total -= oldest.duration
		if oldest.speaking {
			w.speech -= oldest.duration
		}
	}
}

// Total returns the summed duration of all entries.
func (w *RollingWindow) Total() time.Duration {
	return w.total
}

// Speech returns the summed duration of speaking entries.
func (w *RollingWindow) Speech() time.Duration {
	return w.speech
}

// Len returns the number of entries currently held.
func (w *RollingWindow) Len() int {
	return len(w.entries)
}

// Reset discards all entries.
func (w *RollingWindow) Reset() {
	w.entries = nil
	w.total = 0
	w.speech = 0
}
