package protocol

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vocalhq/interview-trainer/internal/types"
)

// validate is the shared validator instance for outbound message validation.
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

// StartParams are the session parameters sent with start_session.
type StartParams struct {
	Style      types.Style `json:"style" validate:"required,oneof=supportive neutral cold"`
	Group      string      `json:"group" validate:"required,oneof=control treatment"`
	Consent    bool        `json:"consent"`
	Accent     string      `json:"accent" validate:"omitempty,max=100"`
	Notes      string      `json:"notes" validate:"omitempty,max=2000"`
	Pack       string      `json:"pack" validate:"omitempty,max=100"`
	Difficulty string      `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

// Validate checks the start parameters against their constraints.
func (p StartParams) Validate() error {
	return validate.Struct(p)
}

// --- Outbound messages ---

type startSessionMsg struct {
	Type string `json:"type"`
	StartParams
}

type userAnswerMsg struct {
	Type    string                `json:"type"`
	Answer  string                `json:"answer"`
	Metrics types.DeliveryMetrics `json:"metrics"`
}

type userClarificationMsg struct {
	Type     string `json:"type"`
	Question string `json:"question"`
}

type switchStyleMsg struct {
	Type  string      `json:"type"`
	Style types.Style `json:"style"`
}

type checkinMsg struct {
	Type       string `json:"type"`
	Group      string `json:"group"`
	Confidence int    `json:"confidence"`
	Stress     int    `json:"stress"`
}

type telemetryMsg struct {
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	LatencyMs float64        `json:"latencyMs,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type pingMsg struct {
	Type string `json:"type"`
}

// --- Inbound messages ---

// ServerMessage is the flat inbound envelope; fields are populated per type.
type ServerMessage struct {
	Type       string      `json:"type"`
	SessionID  string      `json:"session_id"`
	Style      types.Style `json:"style"`
	Group      string      `json:"group"`
	Turn       int         `json:"turn"`
	Question   string      `json:"question"`
	Preface    string      `json:"preface"`
	Source     string      `json:"source"`
	AnswerTurn int         `json:"answer_turn"`
	Message    string      `json:"message"`
	Reason     string      `json:"reason"`
	Items      []types.Tip `json:"items"`
}

// Inbound message types.
const (
	msgSessionReady   = "session_ready"
	msgSessionStarted = "session_started"
	msgQuestion       = "question"
	msgClarification  = "clarification"
	msgInterviewerMsg = "interviewer_message"
	msgStyleSwitched  = "style_switched"
	msgTips           = "tips"
	msgCheckinLogged  = "checkin_logged"
	msgPong           = "pong"
	msgSessionEnded   = "session_ended"
	msgError          = "error"
)
