// Package nudge watches live delivery telemetry during an active answer and
// emits throttled coaching events.
package nudge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vocalhq/interview-trainer/internal/types"
)

// Kind identifies a coaching nudge category.
type Kind string

// Nudge kinds.
const (
	KindPace   Kind = "pace"
	KindRamble Kind = "ramble"
	KindCenter Kind = "center"
)

// Timing and threshold constants, tuned empirically.
const (
	// PollInterval is the cadence at which the engine should be observed.
	PollInterval = 280 * time.Millisecond

	// DisplayDuration is how long an emitted nudge stays visible.
	DisplayDuration = 4200 * time.Millisecond

	rambleAfter = 55 * time.Second

	paceRateWPM  = 175
	pacePauseMax = 0.12
	paceSustain  = 1300 * time.Millisecond

	centerMaxPct  = 55
	centerSustain = 1500 * time.Millisecond

	cooldownRamble = 22 * time.Second
	cooldownPace   = 12 * time.Second
	cooldownCenter = 12 * time.Second
)

// messages are the fixed per-kind coaching strings.
var messages = map[Kind]string{
	KindRamble: "Good detail. Start wrapping this answer up.",
	KindPace:   "Take a breath and slow down a touch.",
	KindCenter: "Shift back toward the center of the frame.",
}

// cooldowns is the minimum inter-emission interval per kind.
var cooldowns = map[Kind]time.Duration{
	KindRamble: cooldownRamble,
	KindPace:   cooldownPace,
	KindCenter: cooldownCenter,
}

// Event is one emitted coaching nudge. Transient; superseded after
// DisplayDuration.
type Event struct {
	Kind      Kind
	Message   string
	EmittedAt time.Time
}

// Observation is one poll of the live session state.
type Observation struct {
	Now              time.Time
	Talking          bool
	Metrics          types.DeliveryMetrics
	RecordingAnswer  bool // session Active and an answer-mode segment exists
	RecordingElapsed time.Duration
}

// Engine tracks sustain timers and per-kind cooldowns and decides when a
// nudge fires. It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	enabled bool

	lastEmit map[Kind]time.Time

	fastSince      time.Time
	offCenterSince time.Time

	current    *Event
	clearTimer *time.Timer

	onEmit  func(Event)
	onClear func()

	afterFunc func(d time.Duration, f func()) *time.Timer
}

// New returns an enabled Engine. onEmit fires on every emission (telemetry
// reporting, audible cue); onClear fires when the displayed nudge expires or
// is dismissed. Either may be nil.
func New(onEmit func(Event), onClear func()) *Engine {
	return &Engine{
		enabled:   true,
		lastEmit:  make(map[Kind]time.Time),
		onEmit:    onEmit,
		onClear:   onClear,
		afterFunc: time.AfterFunc,
	}
}

// SetTimerFunc overrides clear-timer scheduling, for tests.
func (e *Engine) SetTimerFunc(fn func(time.Duration, func()) *time.Timer) {
	e.afterFunc = fn
}

// SetEnabled toggles emission. Disabling immediately clears any displayed
// nudge and halts future emission until re-enabled.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	if !enabled {
		e.clearLocked()
	}
	e.mu.Unlock()
}

// Current returns the nudge currently displayed, if any.
func (e *Engine) Current() *Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	ev := *e.current
	return &ev
}

// Clear dismisses the displayed nudge without touching cooldowns.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.clearLocked()
	e.mu.Unlock()
}

// clearLocked drops the displayed nudge and its expiry timer.
func (e *Engine) clearLocked() {
	if e.clearTimer != nil {
		e.clearTimer.Stop()
		e.clearTimer = nil
	}
	if e.current != nil {
		e.current = nil
		if e.onClear != nil {
			go e.onClear()
		}
	}
}

// Observe evaluates one poll tick and returns the emitted event, if any.
// Sustain timers reset on any tick where their condition does not hold.
func (e *Engine) Observe(o Observation) *Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled || !o.RecordingAnswer {
		e.fastSince = time.Time{}
		e.offCenterSince = time.Time{}
		return nil
	}

	m := o.Metrics

	// Sustain tracking advances every tick regardless of what gets emitted.
	if o.Talking && m.SpeakingRateWPM > paceRateWPM && m.PauseRatio < pacePauseMax {
		if e.fastSince.IsZero() {
			e.fastSince = o.Now
		}
	} else {
		e.fastSince = time.Time{}
	}

	if o.Talking && m.GazeCenterPct > 0 && m.GazeCenterPct < centerMaxPct {
		if e.offCenterSince.IsZero() {
			e.offCenterSince = o.Now
		}
	} else {
		e.offCenterSince = time.Time{}
	}

	if o.Talking && o.RecordingElapsed > rambleAfter {
		if ev := e.emitLocked(KindRamble, o.Now); ev != nil {
			return ev
		}
	}
	if !e.fastSince.IsZero() && o.Now.Sub(e.fastSince) >= paceSustain {
		if ev := e.emitLocked(KindPace, o.Now); ev != nil {
			return ev
		}
	}
	if !e.offCenterSince.IsZero() && o.Now.Sub(e.offCenterSince) >= centerSustain {
		if ev := e.emitLocked(KindCenter, o.Now); ev != nil {
			return ev
		}
	}
	return nil
}

// emitLocked fires one nudge unless its kind is still cooling down.
// Requests inside the cooldown window are dropped silently.
func (e *Engine) emitLocked(kind Kind, now time.Time) *Event {
	if last, ok := e.lastEmit[kind]; ok && now.Sub(last) < cooldowns[kind] {
		return nil
	}
	e.lastEmit[kind] = now

	ev := Event{Kind: kind, Message: messages[kind], EmittedAt: now}
	e.current = &ev

	if e.clearTimer != nil {
		e.clearTimer.Stop()
	}
	e.clearTimer = e.afterFunc(DisplayDuration, func() {
		e.mu.Lock()
		if e.current != nil && e.current.EmittedAt.Equal(ev.EmittedAt) {
			e.clearLocked()
		}
		e.mu.Unlock()
	})

	slog.Info("nudge emitted", "kind", kind)
	if e.onEmit != nil {
		go e.onEmit(ev)
	}
	out := ev
	return &out
}

// ResetCooldowns clears per-kind cooldowns and sustain state for a new
// session.
func (e *Engine) ResetCooldowns() {
	e.mu.Lock()
	e.lastEmit = make(map[Kind]time.Time)
	e.fastSince = time.Time{}
	e.offCenterSince = time.Time{}
	e.mu.Unlock()
}
