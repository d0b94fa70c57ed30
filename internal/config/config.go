// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vocalhq/interview-trainer/internal/archive"
	"github.com/vocalhq/interview-trainer/internal/types"
	"github.com/vocalhq/interview-trainer/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultServerURL      = "ws://localhost:8000/ws"
	DefaultSynthesisURL   = "http://localhost:8000/api/tts"
	DefaultRecognitionURL = "http://localhost:8000/api/transcribe"
	DefaultStyle          = types.StyleNeutral
	DefaultGroup          = "treatment"
	DefaultDifficulty     = "medium"
)

// ServerConfig holds interview service endpoints.
type ServerConfig struct {
	URL string `json:"url" validate:"omitempty,uri"` // WebSocket session endpoint
}

// SessionConfig holds default session parameters and behavior toggles.
type SessionConfig struct {
	Style      types.Style `json:"style" validate:"omitempty,oneof=supportive neutral cold"`
	Group      string      `json:"group" validate:"omitempty,oneof=control treatment"`
	Difficulty string      `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Pack       string      `json:"pack" validate:"omitempty,max=100"`
	Accent     string      `json:"accent" validate:"omitempty,max=100"`
	AutoListen *bool       `json:"auto_listen,omitempty"` // nil means enabled
	AutoSend   *bool       `json:"auto_send,omitempty"`   // nil means enabled
}

// SpeechConfig holds synthesis and recognition service settings.
type SpeechConfig struct {
	SynthesisURL   string `json:"synthesis_url" validate:"omitempty,uri"`
	RecognitionURL string `json:"recognition_url" validate:"omitempty,uri"`

	// OAuth2 client-credentials auth for the speech services. All three
	// fields must be set for authenticated requests.
	TokenURL     string `json:"token_url" validate:"omitempty,uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// CaptureConfig holds microphone input settings.
type CaptureConfig struct {
	Device string `json:"device"` // PulseAudio source name (empty = default source)
}

// CoachingConfig holds live coaching settings.
type CoachingConfig struct {
	NudgesEnabled *bool `json:"nudges_enabled,omitempty"` // nil means enabled
}

// EventLogConfig holds session event log settings.
type EventLogConfig struct {
	Path string `json:"path"` // JSON lines file path (empty = platform default)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Session  SessionConfig  `json:"session"`
	Speech   SpeechConfig   `json:"speech"`
	Capture  CaptureConfig  `json:"capture"`
	Coaching CoachingConfig `json:"coaching"`
	Archive  archive.Config `json:"archive"`
	EventLog EventLogConfig `json:"event_log"`

	mu       sync.RWMutex
	filePath string
}

// validate is the shared validator for configuration fields.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		Server: ServerConfig{URL: DefaultServerURL},
		Session: SessionConfig{
			Style:      DefaultStyle,
			Group:      DefaultGroup,
			Difficulty: DefaultDifficulty,
		},
		Speech: SpeechConfig{
			SynthesisURL:   DefaultSynthesisURL,
			RecognitionURL: DefaultRecognitionURL,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := validate.Struct(c); err != nil {
		return util.WrapError("validate config", err)
	}

	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Session.Style == "" {
		c.Session.Style = DefaultStyle
	}
	if c.Session.Group == "" {
		c.Session.Group = DefaultGroup
	}
	if c.Session.Difficulty == "" {
		c.Session.Difficulty = DefaultDifficulty
	}
	if c.Speech.SynthesisURL == "" {
		c.Speech.SynthesisURL = DefaultSynthesisURL
	}
	if c.Speech.RecognitionURL == "" {
		c.Speech.RecognitionURL = DefaultRecognitionURL
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Setters for runtime-adjustable settings ---

// SetStyle updates the default interviewer style and saves the configuration.
func (c *Config) SetStyle(style types.Style) error {
	if !style.Valid() {
		return fmt.Errorf("invalid style: %s", style)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session.Style = style
	return c.saveLocked()
}

// SetAutoSend updates the auto-send toggle and saves the configuration.
func (c *Config) SetAutoSend(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session.AutoSend = &enabled
	return c.saveLocked()
}

// SetAutoListen updates the auto-listen toggle and saves the configuration.
func (c *Config) SetAutoListen(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session.AutoListen = &enabled
	return c.saveLocked()
}

// SetNudgesEnabled updates the coaching toggle and saves the configuration.
func (c *Config) SetNudgesEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Coaching.NudgesEnabled = &enabled
	return c.saveLocked()
}

// SetCaptureDevice updates the microphone source and saves the configuration.
func (c *Config) SetCaptureDevice(device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Capture.Device = device
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// Server
	ServerURL string

	// Session
	Style      types.Style
	Group      string
	Difficulty string
	Pack       string
	Accent     string
	AutoListen bool
	AutoSend   bool

	// Speech
	SynthesisURL   string
	RecognitionURL string
	TokenURL       string
	ClientID       string
	ClientSecret   string

	// Capture
	CaptureDevice string

	// Coaching
	NudgesEnabled bool

	// Archive
	Archive archive.Config

	// Event log
	EventLogPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		ServerURL: cmp.Or(c.Server.URL, DefaultServerURL),

		Style:      cmp.Or(c.Session.Style, DefaultStyle),
		Group:      cmp.Or(c.Session.Group, DefaultGroup),
		Difficulty: cmp.Or(c.Session.Difficulty, DefaultDifficulty),
		Pack:       c.Session.Pack,
		Accent:     c.Session.Accent,
		AutoListen: boolOrTrue(c.Session.AutoListen),
		AutoSend:   boolOrTrue(c.Session.AutoSend),

		SynthesisURL:   cmp.Or(c.Speech.SynthesisURL, DefaultSynthesisURL),
		RecognitionURL: cmp.Or(c.Speech.RecognitionURL, DefaultRecognitionURL),
		TokenURL:       c.Speech.TokenURL,
		ClientID:       c.Speech.ClientID,
		ClientSecret:   c.Speech.ClientSecret,

		CaptureDevice: c.Capture.Device,

		NudgesEnabled: boolOrTrue(c.Coaching.NudgesEnabled),

		Archive: c.Archive,

		EventLogPath: c.EventLog.Path,
	}
}

// HasSpeechAuth reports whether OAuth2 client-credentials auth is configured.
func (s *Snapshot) HasSpeechAuth() bool {
	return s.TokenURL != "" && s.ClientID != "" && s.ClientSecret != ""
}

// boolOrTrue resolves an optional boolean that defaults to enabled.
func boolOrTrue(v *bool) bool {
	return v == nil || *v
}
