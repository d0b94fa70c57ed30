package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/vocalhq/interview-trainer/internal/archive"
	"github.com/vocalhq/interview-trainer/internal/capture"
	"github.com/vocalhq/interview-trainer/internal/eventlog"
	"github.com/vocalhq/interview-trainer/internal/types"
)

// printfUser writes one formatted line to the console for the user, as
// opposed to the structured slog output meant for diagnostics.
func printfUser(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

func printlnUser(s string) {
	fmt.Fprintln(os.Stdout, s)
}

const helpText = `commands:
  start                 start or restart a session
  stop                  end the session
  listen                start recording an answer
  clarify               start recording a clarifying question
  done                  stop the current recording
  redo                  discard the current recording
  send [text]           submit the pending draft, or typed text
  ask <text>            send a typed clarifying question
  style <s>             switch interviewer style (supportive|neutral|cold)
  checkin <conf> <str>  report confidence and stress ratings (1-5)
  nudges <on|off>       toggle live coaching
  autosend <on|off>     toggle submitting transcripts without review
  autolisten <on|off>   toggle recording right after each question
  tips                  show coaching tips received so far
  transcript            show the session transcript
  metrics               show current delivery metrics
  events [n]            show recent session events
  devices               list microphone sources
  device <id>           select a microphone source
  archive               check answer archive storage access
  version               show build and update info
  quit                  exit`

// runCommandLoop reads console commands until stdin closes or ctx ends.
func (t *Trainer) runCommandLoop(ctx context.Context, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if !t.dispatch(ctx, cancel, strings.ToLower(cmd), rest) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("console read error", "error", err)
	}
}

// dispatch executes one console command and reports whether to keep reading.
func (t *Trainer) dispatch(ctx context.Context, cancel context.CancelFunc, cmd, rest string) bool {
	switch cmd {
	case "help", "?":
		printlnUser(helpText)

	case "start":
		if err := t.startSession(ctx); err != nil {
			printfUser("start failed: %v", err)
		}

	case "stop":
		t.ctrl.Stop()

	case "listen":
		t.startRecording(ctx, types.ModeAnswer)

	case "clarify":
		t.startRecording(ctx, types.ModeClarification)

	case "done":
		t.seg.Stop()

	case "redo":
		t.seg.Discard()
		if err := t.eventLog.LogSegment(eventlog.SegmentDiscarded, t.ctrl.SessionID(), eventlog.SegmentDetails{}); err != nil {
			slog.Warn("failed to log segment event", "error", err)
		}

	case "send":
		t.sendAnswer(rest)

	case "ask":
		if rest == "" {
			printlnUser("usage: ask <text>")
			break
		}
		t.ctrl.SendClarification(rest)

	case "style":
		style := types.Style(rest)
		if !style.Valid() {
			printlnUser("usage: style <supportive|neutral|cold>")
			break
		}
		t.ctrl.SwitchStyle(style)
		if err := t.cfg.SetStyle(style); err != nil {
			slog.Warn("failed to save config", "error", err)
		}
		if err := t.eventLog.LogSession(eventlog.StyleSwitched, t.ctrl.SessionID(), eventlog.SessionDetails{
			Style: rest,
		}); err != nil {
			slog.Warn("failed to log style event", "error", err)
		}

	case "checkin":
		t.sendCheckIn(rest)

	case "nudges":
		enabled, ok := parseToggle(rest)
		if !ok {
			printlnUser("usage: nudges <on|off>")
			break
		}
		t.nudges.SetEnabled(enabled)
		if err := t.cfg.SetNudgesEnabled(enabled); err != nil {
			slog.Warn("failed to save config", "error", err)
		}

	case "autosend":
		enabled, ok := parseToggle(rest)
		if !ok {
			printlnUser("usage: autosend <on|off>")
			break
		}
		t.orch.SetAutoSend(enabled)
		if err := t.cfg.SetAutoSend(enabled); err != nil {
			slog.Warn("failed to save config", "error", err)
		}

	case "autolisten":
		enabled, ok := parseToggle(rest)
		if !ok {
			printlnUser("usage: autolisten <on|off>")
			break
		}
		t.orch.SetAutoListen(enabled)
		if err := t.cfg.SetAutoListen(enabled); err != nil {
			slog.Warn("failed to save config", "error", err)
		}

	case "tips":
		t.printTips()

	case "transcript":
		t.printTranscript()

	case "metrics":
		m := t.agg.Metrics()
		printfUser("rate %d wpm, pause %.2f, gaze %d%%, fillers %d, volume %.2f",
			m.SpeakingRateWPM, m.PauseRatio, m.GazeCenterPct, m.FillerCount, m.Volume)
		if ev := t.nudges.Current(); ev != nil {
			printfUser("coach: %s", ev.Message)
		}

	case "events":
		t.printEvents(rest)

	case "devices":
		devices, err := capture.ListDevices()
		if err != nil {
			printfUser("device listing failed: %v", err)
			break
		}
		for _, d := range devices {
			printfUser("%s\t%s", d.ID, d.Name)
		}

	case "device":
		if rest == "" {
			printlnUser("usage: device <id>")
			break
		}
		if err := t.cfg.SetCaptureDevice(rest); err != nil {
			printfUser("device change failed: %v", err)
			break
		}
		printlnUser("device saved; takes effect on restart")

	case "archive":
		snap := t.cfg.Snapshot()
		if !snap.Archive.IsConfigured() {
			printlnUser("archive storage is not configured")
			break
		}
		if err := archive.TestConnection(snap.Archive); err != nil {
			printfUser("archive check failed: %v", err)
			break
		}
		printlnUser("archive storage reachable")

	case "version":
		if t.version == nil {
			printfUser("%s (commit %s, built %s)", Version, Commit, BuildTime)
			break
		}
		info := t.version.Info()
		if info.UpdateAvail {
			printfUser("%s (commit %s, built %s); update available: %s",
				info.Current, info.Commit, info.BuildTime, info.Latest)
		} else {
			printfUser("%s (commit %s, built %s)", info.Current, info.Commit, info.BuildTime)
		}

	case "quit", "exit":
		cancel()
		return false

	default:
		printfUser("unknown command %q (try \"help\")", cmd)
	}
	return true
}

// startRecording begins a manual recording segment.
func (t *Trainer) startRecording(ctx context.Context, mode types.RecordingMode) {
	if t.orch.Speaking() {
		printlnUser("wait for the interviewer to finish speaking")
		return
	}
	t.agg.BeginSegment()
	if err := t.seg.Start(ctx, mode); err != nil {
		printfUser("recording failed: %v", err)
		if advice := t.seg.LastError(); advice != "" {
			printlnUser(advice)
		}
		if lerr := t.eventLog.LogSegment(eventlog.SegmentError, t.ctrl.SessionID(), eventlog.SegmentDetails{
			Mode:  string(mode),
			Error: err.Error(),
		}); lerr != nil {
			slog.Warn("failed to log segment event", "error", lerr)
		}
	}
}

// sendAnswer submits typed text, or the pending draft when text is empty.
func (t *Trainer) sendAnswer(text string) {
	mode := types.ModeAnswer
	if text == "" {
		var draft string
		mode, draft = t.takeDraft()
		if draft == "" {
			printlnUser("nothing to send")
			return
		}
		text = draft
		if mode == "" {
			mode = types.ModeAnswer
		}
	}
	t.handleSubmit(mode, text, t.agg.Metrics())
}

// sendCheckIn parses "checkin <confidence> <stress>" and reports it.
func (t *Trainer) sendCheckIn(rest string) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		printlnUser("usage: checkin <confidence 1-5> <stress 1-5>")
		return
	}
	confidence, err1 := strconv.Atoi(fields[0])
	stress, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil ||
		confidence < 1 || confidence > 5 || stress < 1 || stress > 5 {
		printlnUser("usage: checkin <confidence 1-5> <stress 1-5>")
		return
	}

	t.ctrl.SendCheckIn(confidence, stress)
	if err := t.eventLog.LogSession(eventlog.CheckIn, t.ctrl.SessionID(), eventlog.SessionDetails{
		Confidence: confidence,
		Stress:     stress,
	}); err != nil {
		slog.Warn("failed to log checkin event", "error", err)
	}
}

// parseToggle maps "on"/"off" to a boolean.
func parseToggle(s string) (enabled, ok bool) {
	switch s {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}

// printEvents shows the most recent session events, newest first.
func (t *Trainer) printEvents(rest string) {
	n := 10
	if rest != "" {
		parsed, err := strconv.Atoi(rest)
		if err != nil || parsed < 1 {
			printlnUser("usage: events [n]")
			return
		}
		n = parsed
	}

	events, hasMore, err := eventlog.ReadLast(t.eventLog.Path(), n, 0, eventlog.FilterAll)
	if err != nil {
		printfUser("event log read failed: %v", err)
		return
	}
	if len(events) == 0 {
		printlnUser("no events logged yet")
		return
	}
	for _, ev := range events {
		printfUser("[%s] %s", ev.Timestamp.Format("15:04:05"), ev.Type)
	}
	if hasMore {
		printlnUser("(older events omitted)")
	}
}

func (t *Trainer) printTips() {
	tips := t.ctrl.Tips()
	if len(tips) == 0 {
		printlnUser("no tips yet")
		return
	}
	for _, turn := range tips {
		printfUser("turn %d:", turn.Turn)
		for _, tip := range turn.Items {
			printfUser("  - %s: %s", tip.Summary, tip.Detail)
		}
	}
}

func (t *Trainer) printTranscript() {
	entries := t.ctrl.Transcript()
	if len(entries) == 0 {
		printlnUser("transcript is empty")
		return
	}
	for _, e := range entries {
		printfUser("[%s] %s: %s", e.At.Format("15:04:05"), e.Role, e.Text)
	}
}
