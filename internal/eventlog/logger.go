// Package eventlog provides unified event logging for the trainer.
// It captures session, recording, nudge, and archive events in a single
// JSON lines file so a practice run can be reviewed afterwards.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted EventType = "session_started"
	SessionState   EventType = "session_state"
	SessionEnded   EventType = "session_ended"
	StyleSwitched  EventType = "style_switched"
	CheckIn        EventType = "checkin"
)

// Recording event types.
const (
	SegmentStarted   EventType = "segment_started"
	SegmentFinalized EventType = "segment_finalized"
	SegmentDiscarded EventType = "segment_discarded"
	SegmentError     EventType = "segment_error"
	AnswerSent       EventType = "answer_sent"
	AnswerDrafted    EventType = "answer_drafted"
)

// Coaching and archive event types.
const (
	NudgeEmitted    EventType = "nudge_emitted"
	TipsReceived    EventType = "tips_received"
	UploadQueued    EventType = "upload_queued"
	UploadCompleted EventType = "upload_completed"
	UploadFailed    EventType = "upload_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session-specific event details.
type SessionDetails struct {
	State      string `json:"state,omitempty"`
	Style      string `json:"style,omitempty"`
	Group      string `json:"group,omitempty"`
	Turn       int    `json:"turn,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
	Stress     int    `json:"stress,omitempty"`
}

// SegmentDetails contains recording-segment event details.
type SegmentDetails struct {
	SegmentID  string  `json:"segment_id,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
	AudioBytes int     `json:"audio_bytes,omitempty"`
	Words      int     `json:"words,omitempty"`
	Fillers    int     `json:"fillers,omitempty"`
	RateWPM    int     `json:"rate_wpm,omitempty"`
	PauseRatio float64 `json:"pause_ratio,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NudgeDetails contains coaching event details.
type NudgeDetails struct {
	Kind    string `json:"kind,omitempty"`
	Turn    int    `json:"turn,omitempty"`
	Count   int    `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

// UploadDetails contains archive upload event details.
type UploadDetails struct {
	Key        string `json:"key,omitempty"`
	SizeBytes  int    `json:"size_bytes,omitempty"`
	RetryCount int    `json:"retry,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "interview-trainer", "logs", "sessions.jsonl")
	default: // linux, darwin
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "interview-trainer", "sessions.jsonl")
		}
		return filepath.Join(home, ".local", "state", "interview-trainer", "sessions.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogSession logs a session lifecycle event.
func (l *Logger) LogSession(eventType EventType, sessionID string, details SessionDetails) error {
	return l.Log(&Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   &details,
	})
}

// LogSegment logs a recording-segment event.
func (l *Logger) LogSegment(eventType EventType, sessionID string, details SegmentDetails) error {
	return l.Log(&Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   &details,
	})
}

// LogNudge logs a coaching event.
func (l *Logger) LogNudge(eventType EventType, sessionID string, details NudgeDetails) error {
	return l.Log(&Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   &details,
	})
}

// LogUpload logs an archive upload event.
func (l *Logger) LogUpload(eventType EventType, sessionID string, details UploadDetails) error {
	return l.Log(&Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   &details,
	})
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll      TypeFilter = ""
	FilterSession  TypeFilter = "session"
	FilterSegment  TypeFilter = "segment"
	FilterCoaching TypeFilter = "coaching"
	FilterUpload   TypeFilter = "upload"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type, in
// reverse chronological order (newest first).
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	// Parse events newest first, applying filter, then offset, then limit.
	events := make([]Event, 0, n)
	skipped := 0
	hasMore := false
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !matchesFilter(event.Type, filter) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) >= n {
			hasMore = true
			break
		}
		events = append(events, event)
	}

	return events, hasMore, nil
}

func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterSession:
		return IsSessionEvent(t)
	case FilterSegment:
		return IsSegmentEvent(t)
	case FilterCoaching:
		return IsCoachingEvent(t)
	case FilterUpload:
		return IsUploadEvent(t)
	default:
		return false
	}
}

// IsSessionEvent returns true if the event type is a session event.
func IsSessionEvent(t EventType) bool {
	return t == SessionStarted || t == SessionState || t == SessionEnded ||
		t == StyleSwitched || t == CheckIn
}

// IsSegmentEvent returns true if the event type is a recording event.
func IsSegmentEvent(t EventType) bool {
	return t == SegmentStarted || t == SegmentFinalized || t == SegmentDiscarded ||
		t == SegmentError || t == AnswerSent || t == AnswerDrafted
}

// IsCoachingEvent returns true if the event type is a coaching event.
func IsCoachingEvent(t EventType) bool {
	return t == NudgeEmitted || t == TipsReceived
}

// IsUploadEvent returns true if the event type is an archive upload event.
func IsUploadEvent(t EventType) bool {
	return t == UploadQueued || t == UploadCompleted || t == UploadFailed
}
