// Package types provides shared type definitions used across the interview trainer.
package types

import "time"

// Style is the interviewer persona requested for a session.
type Style string

// Interviewer styles supported by the remote interview service.
const (
	StyleSupportive Style = "supportive"
	StyleNeutral    Style = "neutral"
	StyleCold       Style = "cold"
)

// Valid reports whether s is a recognized interviewer style.
func (s Style) Valid() bool {
	switch s {
	case StyleSupportive, StyleNeutral, StyleCold:
		return true
	}
	return false
}

// RecordingMode distinguishes what a captured segment answers.
type RecordingMode string

// Recording modes.
const (
	ModeAnswer        RecordingMode = "answer"
	ModeClarification RecordingMode = "clarification"
)

// DeliveryMetrics is the per-tick snapshot of delivery quality derived from
// the rolling telemetry window plus last-answer text analysis. It is always
// replaced wholesale, never mutated field by field.
type DeliveryMetrics struct {
	// SpeakingRateWPM is words per minute. Before the first transcription it
	// is a pause-based heuristic in [90,170]; afterwards it is derived from
	// the transcript word count over captured speech seconds.
	SpeakingRateWPM int `json:"speakingRate"`
	// PauseRatio is the fraction of the window spent silent, in [0,1].
	PauseRatio float64 `json:"pauseRatio"`
	// GazeCenterPct is how centered the face is horizontally, 0-100.
	GazeCenterPct int `json:"gaze"`
	// FillerCount is the filler-word count from the last transcribed answer.
	FillerCount int `json:"fillers"`
	// SpeechSeconds is the voiced time captured during the current or most
	// recent recording segment.
	SpeechSeconds float64 `json:"speechSeconds"`
	// Volume is the latest normalized RMS amplitude in [0,1].
	Volume float64 `json:"volume"`
}

// TranscriptRole identifies who produced a transcript entry.
type TranscriptRole string

// Transcript roles.
const (
	RoleInterviewer TranscriptRole = "interviewer"
	RoleUser        TranscriptRole = "user"
)

// TranscriptEntry is one line of the session transcript log.
type TranscriptEntry struct {
	Role TranscriptRole `json:"role"`
	Text string         `json:"text"`
	Turn int            `json:"turn"`
	At   time.Time      `json:"at"`
}

// Tip is one coaching tip delivered by the interview service after an answer.
type Tip struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}
