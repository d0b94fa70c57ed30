package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vocalhq/interview-trainer/internal/archive"
	"github.com/vocalhq/interview-trainer/internal/capture"
	"github.com/vocalhq/interview-trainer/internal/config"
	"github.com/vocalhq/interview-trainer/internal/eventlog"
	"github.com/vocalhq/interview-trainer/internal/nudge"
	"github.com/vocalhq/interview-trainer/internal/protocol"
	"github.com/vocalhq/interview-trainer/internal/segment"
	"github.com/vocalhq/interview-trainer/internal/speech"
	"github.com/vocalhq/interview-trainer/internal/telemetry"
	"github.com/vocalhq/interview-trainer/internal/types"
	"github.com/vocalhq/interview-trainer/internal/util"
)

// GazeFunc reports the current horizontal face offset from frame center, as a
// fraction of half the frame width. ok is false when no face data is
// available.
type GazeFunc func() (offset float64, ok bool)

// gazePollInterval is the cadence for sampling the gaze hook.
const gazePollInterval = 200 * time.Millisecond

// Trainer composes capture, telemetry, segmentation, speech, coaching, and
// the session protocol into one running application.
type Trainer struct {
	cfg      *config.Config
	eventLog *eventlog.Logger

	agg      *telemetry.Aggregator
	seg      *segment.Engine
	orch     *speech.Orchestrator
	ctrl     *protocol.Controller
	nudges   *nudge.Engine
	archiver *archive.Archiver
	mic      *capture.PulseSource

	gazeFn  GazeFunc
	version *VersionChecker

	mu        sync.Mutex
	lastDraft struct {
		mode types.RecordingMode
		text string
	}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTrainer wires all components from the loaded configuration.
func NewTrainer(cfg *config.Config) (*Trainer, error) {
	snap := cfg.Snapshot()

	logPath := snap.EventLogPath
	if logPath == "" {
		logPath = eventlog.DefaultLogPath()
	}
	eventLog, err := eventlog.NewLogger(logPath)
	if err != nil {
		return nil, util.WrapError("open event log", err)
	}
	slog.Info("event log opened", "path", eventLog.Path())

	t := &Trainer{
		cfg:      cfg,
		eventLog: eventLog,
		agg:      telemetry.New(),
		stopCh:   make(chan struct{}),
	}

	t.archiver = archive.New(snap.Archive, eventLog)

	t.nudges = nudge.New(t.handleNudge, nil)
	t.nudges.SetEnabled(snap.NudgesEnabled)

	t.seg = segment.New(t.classifyChunk, t.handleFinalized,
		segment.WithSourceFactory(func() capture.Source {
			return capture.NewPulseSource(snap.CaptureDevice)
		}),
		segment.WithStartHook(t.handleSegmentStart),
	)

	httpClient := speech.NewHTTPClient(context.Background(), speech.ServiceAuth{
		TokenURL:     snap.TokenURL,
		ClientID:     snap.ClientID,
		ClientSecret: snap.ClientSecret,
	})
	t.orch = speech.NewOrchestrator(speech.Config{
		Synthesis:   speech.NewSynthesisClient(snap.SynthesisURL, httpClient),
		Recognition: speech.NewRecognitionClient(snap.RecognitionURL, httpClient),
		Local:       &speech.ESpeakSynthesizer{},
		Player:      &speech.ExecPlayer{},
		Segments:    t.seg,
		Telemetry:   t.agg,
		AutoListen:  snap.AutoListen,
		AutoSend:    snap.AutoSend,
		OnSubmit:    t.handleSubmit,
		OnDraft:     t.handleDraft,
		OnLatency:   t.handleLatency,
		SessionID:   func() string { return t.ctrl.SessionID() },
	})

	t.ctrl = protocol.NewController(snap.ServerURL, t.orch,
		protocol.WithStateHook(t.handleSessionState))

	t.mic = capture.NewPulseSource(snap.CaptureDevice)
	return t, nil
}

// Run starts background workers, opens the microphone, begins a session, and
// blocks until ctx is canceled.
func (t *Trainer) Run(ctx context.Context) error {
	t.archiver.Start()

	// Session-wide microphone stream. On failure the segmentation engine
	// falls back to acquiring its own source per recording.
	if err := t.mic.Start(ctx, t.micChunk); err != nil {
		cerr := capture.Classify(err)
		slog.Warn("continuous capture unavailable", "reason", cerr.Reason, "advice", cerr.Advice())
	} else {
		t.seg.SetSharedSource(t.mic)
		slog.Info("microphone stream started")
	}

	t.wg.Add(2)
	go t.runNudgeLoop()
	go t.runGazeLoop()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := t.startSession(cctx); err != nil {
		slog.Error("failed to start session", "error", err)
	}

	go t.runCommandLoop(cctx, cancel)

	<-cctx.Done()
	t.shutdown()
	return nil
}

// startSession begins a session with the configured parameters.
func (t *Trainer) startSession(ctx context.Context) error {
	snap := t.cfg.Snapshot()
	err := t.ctrl.Start(ctx, protocol.StartParams{
		Style:      snap.Style,
		Group:      snap.Group,
		Consent:    true,
		Accent:     snap.Accent,
		Pack:       snap.Pack,
		Difficulty: snap.Difficulty,
	})
	if err != nil {
		return err
	}
	if err := t.eventLog.LogSession(eventlog.SessionStarted, "", eventlog.SessionDetails{
		Style: string(snap.Style),
		Group: snap.Group,
	}); err != nil {
		slog.Warn("failed to log session event", "error", err)
	}
	return nil
}

// SetGazeFunc installs an optional face-position provider. Without one the
// centering score stays at zero and centering nudges never fire.
func (t *Trainer) SetGazeFunc(fn GazeFunc) {
	t.gazeFn = fn
}

// shutdown stops all components in dependency order.
func (t *Trainer) shutdown() {
	t.stopOnce.Do(func() { close(t.stopCh) })

	t.ctrl.Stop()
	t.orch.CancelSpeech()
	t.seg.Discard()
	if err := t.mic.Stop(); err != nil {
		slog.Debug("microphone stop error", "error", err)
	}
	t.wg.Wait()
	t.archiver.Stop()
	if err := t.eventLog.Close(); err != nil {
		slog.Warn("event log close error", "error", err)
	}
}

// micChunk handles one chunk from the shared microphone stream: classify it,
// advance the telemetry window, and feed any live recording segment.
func (t *Trainer) micChunk(at time.Time, pcm []byte) {
	talking := t.agg.Observe(at, capture.RMSAmplitude(pcm))
	t.seg.OnSample(at, talking, pcm)
}

// classifyChunk scores chunks from engine-owned capture sources.
func (t *Trainer) classifyChunk(at time.Time, pcm []byte) bool {
	return t.agg.Observe(at, capture.RMSAmplitude(pcm))
}

// runNudgeLoop polls the live session state and feeds the coaching engine.
func (t *Trainer) runNudgeLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(nudge.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case now := <-ticker.C:
			mode, startedAt, recording := t.seg.Recording()
			answering := recording && mode == types.ModeAnswer &&
				t.ctrl.State() == protocol.StateActive

			var elapsed time.Duration
			if recording {
				elapsed = now.Sub(startedAt)
			}

			t.nudges.Observe(nudge.Observation{
				Now:              now,
				Talking:          t.agg.Talking(),
				Metrics:          t.agg.Metrics(),
				RecordingAnswer:  answering,
				RecordingElapsed: elapsed,
			})
		}
	}
}

// runGazeLoop samples the gaze hook, when one is installed.
func (t *Trainer) runGazeLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(gazePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if t.gazeFn == nil {
				continue
			}
			if offset, ok := t.gazeFn(); ok {
				t.agg.ObserveGaze(offset)
			}
		}
	}
}

// handleSegmentStart runs when any recording segment begins.
func (t *Trainer) handleSegmentStart() {
	t.nudges.Clear()
	if err := t.eventLog.LogSegment(eventlog.SegmentStarted, t.ctrl.SessionID(), eventlog.SegmentDetails{}); err != nil {
		slog.Warn("failed to log segment event", "error", err)
	}
}

// handleFinalized archives finalized audio and hands it to transcription.
func (t *Trainer) handleFinalized(mode types.RecordingMode, audio []byte, startedAt time.Time) {
	duration := time.Since(startedAt)
	if err := t.eventLog.LogSegment(eventlog.SegmentFinalized, t.ctrl.SessionID(), eventlog.SegmentDetails{
		Mode:       string(mode),
		DurationMs: duration.Milliseconds(),
		AudioBytes: len(audio),
	}); err != nil {
		slog.Warn("failed to log segment event", "error", err)
	}

	wav := capture.WAVFromPCM(audio, capture.CaptureSampleRate())
	t.archiver.QueueAnswer(t.ctrl.SessionID(), t.ctrl.Turn(), mode, wav)

	printfUser("captured %s of audio, transcribing", util.FormatDuration(duration.Milliseconds()))
	t.orch.HandleFinalized(mode, audio, startedAt)
}

// handleSubmit routes an auto-sent transcript to the session.
func (t *Trainer) handleSubmit(mode types.RecordingMode, text string, metrics types.DeliveryMetrics) {
	if mode == types.ModeClarification {
		t.ctrl.SendClarification(text)
	} else {
		t.ctrl.SendAnswer(text, metrics)
	}

	if err := t.eventLog.LogSegment(eventlog.AnswerSent, t.ctrl.SessionID(), eventlog.SegmentDetails{
		Mode:       string(mode),
		Words:      len(text),
		Fillers:    metrics.FillerCount,
		RateWPM:    metrics.SpeakingRateWPM,
		PauseRatio: metrics.PauseRatio,
	}); err != nil {
		slog.Warn("failed to log answer event", "error", err)
	}
}

// handleDraft stores a transcript awaiting manual review.
func (t *Trainer) handleDraft(mode types.RecordingMode, text, errMsg string) {
	t.mu.Lock()
	t.lastDraft.mode = mode
	t.lastDraft.text = text
	t.mu.Unlock()

	if errMsg != "" {
		printlnUser(errMsg)
	} else {
		printfUser("draft: %s", text)
		printlnUser(`type "send" to submit, or "send <text>" to edit`)
	}

	if err := t.eventLog.LogSegment(eventlog.AnswerDrafted, t.ctrl.SessionID(), eventlog.SegmentDetails{
		Mode:  string(mode),
		Error: errMsg,
	}); err != nil {
		slog.Warn("failed to log draft event", "error", err)
	}
}

// takeDraft returns and clears the pending draft transcript.
func (t *Trainer) takeDraft() (types.RecordingMode, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	mode, text := t.lastDraft.mode, t.lastDraft.text
	t.lastDraft.mode = ""
	t.lastDraft.text = ""
	return mode, text
}

// handleLatency forwards stage latencies as session telemetry.
func (t *Trainer) handleLatency(stage string, d time.Duration) {
	t.ctrl.SendTelemetry(stage, d, nil)
}

// handleNudge surfaces one emitted coaching nudge.
func (t *Trainer) handleNudge(ev nudge.Event) {
	printfUser("coach: %s", ev.Message)
	t.ctrl.SendTelemetry("nudge", 0, map[string]any{"kind": string(ev.Kind)})

	if err := t.eventLog.LogNudge(eventlog.NudgeEmitted, t.ctrl.SessionID(), eventlog.NudgeDetails{
		Kind:    string(ev.Kind),
		Turn:    t.ctrl.Turn(),
		Message: ev.Message,
	}); err != nil {
		slog.Warn("failed to log nudge event", "error", err)
	}
}

// handleSessionState reacts to protocol state transitions. Leaving the
// active state stops any recording and aborts in-flight speech.
func (t *Trainer) handleSessionState(st protocol.State) {
	if err := t.eventLog.LogSession(eventlog.SessionState, t.ctrl.SessionID(), eventlog.SessionDetails{
		State: string(st),
		Style: string(t.ctrl.Style()),
		Turn:  t.ctrl.Turn(),
	}); err != nil {
		slog.Warn("failed to log session event", "error", err)
	}

	switch st {
	case protocol.StateActive:
		t.nudges.ResetCooldowns()
		t.agg.Reset()
	default:
		t.seg.Discard()
		t.orch.CancelSpeech()
		t.nudges.Clear()
	}

	if st == protocol.StateClosed {
		if err := t.eventLog.LogSession(eventlog.SessionEnded, t.ctrl.SessionID(), eventlog.SessionDetails{
			Turn: t.ctrl.Turn(),
		}); err != nil {
			slog.Warn("failed to log session event", "error", err)
		}
		printlnUser("session ended")
	}
	if st == protocol.StateError {
		printlnUser("connection lost; type \"start\" to reconnect")
	}
}
