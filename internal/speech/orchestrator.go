package speech

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vocalhq/interview-trainer/internal/capture"
	"github.com/vocalhq/interview-trainer/internal/segment"
	"github.com/vocalhq/interview-trainer/internal/telemetry"
	"github.com/vocalhq/interview-trainer/internal/types"
)

// fillerPattern matches the fixed filler-word list on word boundaries.
var fillerPattern = regexp.MustCompile(`(?i)\b(um|uh|like)\b`)

// Cue is one unit of interviewer-spoken content. ID is monotonic per
// session; delivery is idempotent against duplicate protocol messages.
type Cue struct {
	ID         int
	Text       string
	Preface    string
	Style      types.Style
	ListenMode types.RecordingMode
}

// key identifies a cue for duplicate suppression.
func (c Cue) key() string {
	return c.Preface + "\x00" + c.Text
}

// SubmitFunc receives an auto-sent transcript with its delivery metrics.
type SubmitFunc func(mode types.RecordingMode, text string, metrics types.DeliveryMetrics)

// DraftFunc receives a transcript left for manual review (auto-send off or
// transcription failed, in which case text is empty).
type DraftFunc func(mode types.RecordingMode, text string, errMsg string)

// Orchestrator coordinates one-shot synthesis and recognition calls against
// the segmentation engine so they never race. It is safe for concurrent use.
type Orchestrator struct {
	synth  *SynthesisClient
	recog  *RecognitionClient
	local  LocalSynthesizer
	player Player

	seg *segment.Engine
	agg *telemetry.Aggregator

	onSubmit  SubmitFunc
	onDraft   DraftFunc
	onLatency func(stage string, d time.Duration)
	sessionID func() string

	mu          sync.Mutex
	autoListen  bool
	autoSend    bool
	lastCueID   int
	lastCueKey  string
	speakCancel context.CancelFunc
	speakGen    uint64
	speaking    bool
}

// Config wires an Orchestrator's collaborators and behavior toggles.
type Config struct {
	Synthesis   *SynthesisClient
	Recognition *RecognitionClient
	Local       LocalSynthesizer
	Player      Player
	Segments    *segment.Engine
	Telemetry   *telemetry.Aggregator
	AutoListen  bool
	AutoSend    bool
	OnSubmit    SubmitFunc
	OnDraft     DraftFunc
	OnLatency   func(stage string, d time.Duration)
	SessionID   func() string
}

// NewOrchestrator returns an Orchestrator for the given collaborators.
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		synth:      cfg.Synthesis,
		recog:      cfg.Recognition,
		local:      cfg.Local,
		player:     cfg.Player,
		seg:        cfg.Segments,
		agg:        cfg.Telemetry,
		autoListen: cfg.AutoListen,
		autoSend:   cfg.AutoSend,
		onSubmit:   cfg.OnSubmit,
		onDraft:    cfg.OnDraft,
		onLatency:  cfg.OnLatency,
		sessionID:  cfg.SessionID,
	}
	if o.sessionID == nil {
		o.sessionID = func() string { return "" }
	}
	return o
}

// SetAutoListen toggles starting a recording after each spoken question.
func (o *Orchestrator) SetAutoListen(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoListen = enabled
}

// SetAutoSend toggles submitting transcripts without manual review.
func (o *Orchestrator) SetAutoSend(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autoSend = enabled
}

// Speaking reports whether a synthesis or playback is in flight. Recording
// must not be started manually while this is true.
func (o *Orchestrator) Speaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.speaking
}

// Speak delivers cue: cancels any in-flight synthesis, stops any active
// recording so the question is not captured as the answer, then speaks the
// preface (if any) followed by the main text. A cue identical to the last
// one delivered is dropped. When auto-listen is on, a recording starts as
// soon as playback finishes.
func (o *Orchestrator) Speak(cue Cue) {
	o.mu.Lock()
	if cue.Text == "" {
		o.mu.Unlock()
		return
	}
	if (cue.ID != 0 && cue.ID == o.lastCueID) || cue.key() == o.lastCueKey {
		o.mu.Unlock()
		slog.Debug("duplicate cue dropped", "id", cue.ID)
		return
	}
	o.lastCueID = cue.ID
	o.lastCueKey = cue.key()

	if o.speakCancel != nil {
		o.speakCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.speakCancel = cancel
	o.speakGen++
	gen := o.speakGen
	o.speaking = true
	o.mu.Unlock()

	// Never let the synthesized question bleed into a live recording.
	o.seg.Stop()

	go o.deliver(ctx, gen, cue)
}

// deliver speaks the cue's parts in order and arms auto-listen at the end.
func (o *Orchestrator) deliver(ctx context.Context, gen uint64, cue Cue) {
	defer func() {
		o.mu.Lock()
		if o.speakGen == gen {
			o.speaking = false
		}
		o.mu.Unlock()
	}()

	if cue.Preface != "" {
		o.speakOne(ctx, cue.Preface, cue.Style)
	}
	if ctx.Err() != nil {
		return
	}
	o.speakOne(ctx, cue.Text, cue.Style)
	if ctx.Err() != nil {
		return
	}

	o.mu.Lock()
	stale := o.speakGen != gen
	autoListen := o.autoListen
	o.mu.Unlock()
	if stale || !autoListen {
		return
	}

	mode := cue.ListenMode
	if mode == "" {
		mode = types.ModeAnswer
	}
	o.agg.BeginSegment()
	if err := o.seg.Start(context.Background(), mode); err != nil {
		slog.Warn("auto-listen failed", "error", err)
	}
}

// speakOne synthesizes and plays one piece of text, falling back to the
// local synthesizer on any remote or playback failure.
func (o *Orchestrator) speakOne(ctx context.Context, text string, style types.Style) {
	started := time.Now()
	audio, contentType, err := o.synth.Synthesize(ctx, text, style)
	if err == nil {
		if o.onLatency != nil {
			o.onLatency("tts", time.Since(started))
		}
		if err = o.player.Play(ctx, audio, contentType); err == nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	slog.Warn("remote synthesis failed, using local fallback", "error", err)

	if o.local == nil {
		return
	}
	rate, pitch := styleDelivery(style)
	if err := o.local.Speak(ctx, Utterance{Text: text, Rate: rate, Pitch: pitch}); err != nil {
		slog.Warn("local synthesis failed", "error", err)
	}
}

// CancelSpeech aborts any in-flight synthesis or playback.
func (o *Orchestrator) CancelSpeech() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.speakCancel != nil {
		o.speakCancel()
		o.speakCancel = nil
	}
	o.speaking = false
}

// ResetCue clears duplicate-suppression state for a new session.
func (o *Orchestrator) ResetCue() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastCueID = 0
	o.lastCueKey = ""
}

// HandleFinalized is the segmentation engine's finalize callback: it uploads
// the captured audio for transcription and routes the transcript onward.
// Blocking work runs on its own goroutine.
func (o *Orchestrator) HandleFinalized(mode types.RecordingMode, audio []byte, _ time.Time) {
	o.seg.SetTranscribePending(true)
	go o.transcribe(mode, audio)
}

// transcribe posts audio to the recognition service and applies the result.
func (o *Orchestrator) transcribe(mode types.RecordingMode, audio []byte) {
	defer o.seg.SetTranscribePending(false)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	wav := capture.WAVFromPCM(audio, capture.CaptureSampleRate())
	transcript, latency, err := o.recog.Transcribe(ctx, wav, o.sessionID())
	if err != nil {
		slog.Error("transcription failed", "error", err)
		if o.onDraft != nil {
			o.onDraft(mode, "", "Transcription failed. You can retry or type your answer.")
		}
		return
	}
	if o.onLatency != nil {
		o.onLatency("stt", latency)
	}

	words := len(strings.Fields(transcript))
	fillers := len(fillerPattern.FindAllString(transcript, -1))
	if speechSec := o.agg.SegmentSpeechSeconds(); speechSec > 0 && words > 0 {
		rate := int(math.Round(float64(words) / speechSec * 60))
		o.agg.SetAnswerAnalysis(rate, fillers)
	} else {
		o.agg.SetAnswerAnalysis(0, fillers)
	}

	o.mu.Lock()
	autoSend := o.autoSend
	o.mu.Unlock()

	trimmed := strings.TrimSpace(transcript)
	if autoSend && trimmed != "" {
		if o.onSubmit != nil {
			o.onSubmit(mode, trimmed, o.agg.Metrics())
		}
		return
	}
	if o.onDraft != nil {
		o.onDraft(mode, transcript, "")
	}
}
