// Package segment owns the recording state machine: it starts and stops
// microphone capture segments based on voice activity and silence timeouts.
package segment

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vocalhq/interview-trainer/internal/capture"
	"github.com/vocalhq/interview-trainer/internal/types"
)

const (
	// SilenceTimeout is how long silence must last before a recording is
	// auto-stopped.
	SilenceTimeout = 2600 * time.Millisecond

	// MinRecording protects a segment younger than this from silence-based
	// auto-stop, so a slow starter is not truncated.
	MinRecording = 1200 * time.Millisecond
)

// ErrAlreadyRecording is returned when a recording is already in progress or
// a transcription request is still pending.
var ErrAlreadyRecording = errors.New("a recording is already in progress")

// FinalizeFunc receives the finalized audio of a stopped segment.
type FinalizeFunc func(mode types.RecordingMode, audio []byte, startedAt time.Time)

// Classifier scores one PCM chunk and reports whether it contains speech.
// It is how owned capture sources feed the telemetry aggregator.
type Classifier func(at time.Time, pcm []byte) bool

// recording is the single in-flight capture segment. At most one exists at a
// time; this is the central mutual-exclusion invariant of the engine.
type recording struct {
	id          string
	mode        types.RecordingMode
	startedAt   time.Time
	lastVoiceAt time.Time
	buf         bytes.Buffer
	owned       capture.Source // set only when acquired for this segment
	gen         uint64
}

// Engine is the voice segmentation state machine: Idle (no segment) or
// Recording (one segment). It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// shared is the session-wide capture source, owned by the caller.
	// The engine never stops it. Nil when no live stream is available.
	shared capture.Source

	// newSource builds a fresh capture source when no shared stream exists.
	// Sources built here are owned by the segment and released on stop.
	newSource func() capture.Source

	classify    Classifier
	onFinalized FinalizeFunc
	onStart     func() // invoked when a segment starts (clears pending nudges)

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	seg        *recording
	timer      *time.Timer
	gen        uint64
	sttPending bool

	lastErr string // advisory message from the most recent capture failure
}

// Option configures an Engine.
type Option func(*Engine)

// WithSharedSource sets the session-wide capture source the engine reuses
// instead of acquiring its own. The engine never stops this source.
func WithSharedSource(src capture.Source) Option {
	return func(e *Engine) { e.shared = src }
}

// WithSourceFactory sets the factory used to acquire a fresh capture source
// when no shared stream is available.
func WithSourceFactory(fn func() capture.Source) Option {
	return func(e *Engine) { e.newSource = fn }
}

// WithStartHook sets a hook invoked whenever a segment starts.
func WithStartHook(fn func()) Option {
	return func(e *Engine) { e.onStart = fn }
}

// WithClock overrides the engine clock and timer scheduling, for tests.
func WithClock(now func() time.Time, afterFunc func(time.Duration, func()) *time.Timer) Option {
	return func(e *Engine) {
		e.now = now
		e.afterFunc = afterFunc
	}
}

// New returns an Idle engine. classify scores chunks from owned sources;
// onFinalized receives finalized audio from stopped segments.
func New(classify Classifier, onFinalized FinalizeFunc, opts ...Option) *Engine {
	e := &Engine{
		classify:    classify,
		onFinalized: onFinalized,
		now:         time.Now,
		afterFunc:   time.AfterFunc,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSharedSource installs the session-wide capture source once it is
// streaming. It only takes effect while Idle.
func (e *Engine) SetSharedSource(src capture.Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seg == nil {
		e.shared = src
	}
}

// Recording reports the current segment's mode and start time, if one exists.
func (e *Engine) Recording() (mode types.RecordingMode, startedAt time.Time, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seg == nil {
		return "", time.Time{}, false
	}
	return e.seg.mode, e.seg.startedAt, true
}

// LastError returns the advisory message from the most recent capture
// failure, or empty if the last start succeeded.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// SetTranscribePending marks whether a transcription request is in flight.
// Start fails while pending so a new segment cannot race the previous one.
func (e *Engine) SetTranscribePending(pending bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sttPending = pending
}

// Start acquires a capture source and transitions Idle -> Recording.
// It fails with ErrAlreadyRecording if a segment exists or a transcription
// is pending. Capture failures resolve to a classified error plus an
// advisory message; the engine stays Idle.
func (e *Engine) Start(ctx context.Context, mode types.RecordingMode) error {
	e.mu.Lock()
	if e.seg != nil || e.sttPending {
		e.mu.Unlock()
		return ErrAlreadyRecording
	}

	now := e.now()
	e.gen++
	seg := &recording{
		id:          uuid.NewString(),
		mode:        mode,
		startedAt:   now,
		lastVoiceAt: now,
		gen:         e.gen,
	}

	var owned capture.Source
	if e.shared == nil {
		if e.newSource == nil {
			e.lastErr = (&capture.Error{Reason: capture.ReasonUnavailable}).Advice()
			e.mu.Unlock()
			return &capture.Error{Reason: capture.ReasonUnavailable}
		}
		owned = e.newSource()
		seg.owned = owned
	}

	e.seg = seg
	e.lastErr = ""
	e.armTimerLocked(now)
	e.mu.Unlock()

	if owned != nil {
		if err := owned.Start(ctx, e.ownedChunk); err != nil {
			cerr := capture.Classify(err)
			e.mu.Lock()
			if e.seg == seg {
				e.clearTimerLocked()
				e.seg = nil
			}
			e.lastErr = cerr.Advice()
			e.mu.Unlock()
			slog.Error("capture start failed", "reason", cerr.Reason, "error", err)
			return cerr
		}
	}

	if e.onStart != nil {
		e.onStart()
	}
	slog.Info("recording started", "id", seg.id, "mode", mode)
	return nil
}

// ownedChunk feeds chunks from a segment-owned source through the classifier
// and into the segment buffer.
func (e *Engine) ownedChunk(at time.Time, pcm []byte) {
	talking := e.classify(at, pcm)
	e.OnSample(at, talking, pcm)
}

// OnSample advances the recording with one classified sample. pcm is
// appended to the segment buffer; talking refreshes the silence budget.
// No-op while Idle.
func (e *Engine) OnSample(at time.Time, talking bool, pcm []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seg == nil {
		return
	}
	e.seg.buf.Write(pcm)
	if talking {
		e.seg.lastVoiceAt = at
		e.armTimerLocked(at)
	}
}

// armTimerLocked (re)arms the auto-stop timer for the remaining silence
// budget so auto-stop fires close to the timeout boundary rather than on the
// next coarse tick.
func (e *Engine) armTimerLocked(now time.Time) {
	e.clearTimerLocked()

	wait := SilenceTimeout - now.Sub(e.seg.lastVoiceAt)
	if minWait := MinRecording - now.Sub(e.seg.startedAt); wait < minWait {
		wait = minWait
	}
	if wait < 0 {
		wait = 0
	}

	gen := e.seg.gen
	e.timer = e.afterFunc(wait, func() { e.autoStop(gen) })
}

// clearTimerLocked stops any armed auto-stop timer.
func (e *Engine) clearTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// autoStop fires when the silence budget may have elapsed. A stale timer
// (generation mismatch) is discarded rather than applied to a newer segment.
func (e *Engine) autoStop(gen uint64) {
	e.mu.Lock()
	if e.seg == nil || e.seg.gen != gen {
		e.mu.Unlock()
		return
	}

	now := e.now()
	age := now.Sub(e.seg.startedAt)
	silence := now.Sub(e.seg.lastVoiceAt)

	if age < MinRecording || silence < SilenceTimeout {
		e.armTimerLocked(now)
		e.mu.Unlock()
		return
	}

	slog.Info("auto-stopping recording after silence",
		"id", e.seg.id, "silence_ms", silence.Milliseconds())
	e.stopLocked(false)
}

// Stop finalizes the current segment and transitions to Idle. Idempotent:
// calling it while Idle is a no-op. Audio is handed to the finalize callback
// only if at least one byte was captured.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.seg == nil {
		e.mu.Unlock()
		return
	}
	e.stopLocked(false)
}

// Discard stops the current segment and drops any partially captured audio.
// Used when the capture source itself failed or the session left its active
// state with a broken stream.
func (e *Engine) Discard() {
	e.mu.Lock()
	if e.seg == nil {
		e.mu.Unlock()
		return
	}
	e.stopLocked(true)
}

// stopLocked finalizes the segment. It releases the mutex before invoking
// the finalize callback and returns with the mutex released.
func (e *Engine) stopLocked(discard bool) {
	seg := e.seg
	e.seg = nil
	e.clearTimerLocked()
	e.mu.Unlock()

	if seg.owned != nil {
		if err := seg.owned.Stop(); err != nil {
			slog.Debug("capture source stop error", "error", err)
		}
	}

	audio := seg.buf.Bytes()
	slog.Info("recording stopped",
		"id", seg.id, "mode", seg.mode, "bytes", len(audio), "discarded", discard)

	if !discard && len(audio) > 0 && e.onFinalized != nil {
		e.onFinalized(seg.mode, audio, seg.startedAt)
	}
}
