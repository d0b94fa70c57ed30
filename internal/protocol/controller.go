// Package protocol implements the interview session state machine and its
// WebSocket transport to the remote interview service.
package protocol

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vocalhq/interview-trainer/internal/speech"
	"github.com/vocalhq/interview-trainer/internal/types"
)

// State is the session protocol state.
type State string

// Session states. Closed and Error are terminal for a connection; a new
// Start call re-enters Connecting.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateActive     State = "active"
	StateError      State = "error"
	StateClosed     State = "closed"
)

// pingInterval keeps the transport alive between answers.
const pingInterval = 25 * time.Second

// Speaker is the session-facing subset of the speech orchestrator.
type Speaker interface {
	Speak(cue speech.Cue)
	CancelSpeech()
	ResetCue()
}

// TurnTips are the coaching tips delivered for one answer turn.
type TurnTips struct {
	Turn  int         `json:"turn"`
	Items []types.Tip `json:"items"`
}

// Controller owns the interview session's protocol state. All transitions
// happen via defined protocol events. It is safe for concurrent use.
type Controller struct {
	url     string
	dial    Dialer
	speaker Speaker
	onState func(State)

	mu         sync.Mutex
	state      State
	link       *link
	sessionID  string
	style      types.Style
	group      string
	turn       int
	transcript []types.TranscriptEntry
	tips       []TurnTips
	pending    *StartParams
	cueSeq     int
	lastCueKey string

	// latencyStart records when each upcoming turn's answer was sent, so
	// the answer-to-question latency can be reported as telemetry.
	latencyStart map[int]time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithDialer overrides the transport dialer, for tests.
func WithDialer(d Dialer) Option {
	return func(c *Controller) { c.dial = d }
}

// WithStateHook sets a callback invoked after every state transition.
func WithStateHook(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// NewController returns an Idle controller for the given service URL.
func NewController(url string, speaker Speaker, opts ...Option) *Controller {
	c := &Controller{
		url:          url,
		dial:         DialWebSocket,
		speaker:      speaker,
		state:        StateIdle,
		latencyStart: make(map[int]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current protocol state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the service-assigned session identifier, if any.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Style returns the current interviewer style.
func (c *Controller) Style() types.Style {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style
}

// Turn returns the current answer turn number.
func (c *Controller) Turn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

// Transcript returns a copy of the session transcript log.
func (c *Controller) Transcript() []types.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.TranscriptEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Tips returns a copy of the coaching tips received so far.
func (c *Controller) Tips() []TurnTips {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TurnTips, len(c.tips))
	copy(out, c.tips)
	return out
}

// setStateLocked transitions state and schedules the state hook. The hook
// runs after the mutex is released by the caller returning through deferred
// unlocks, so it is dispatched on its own goroutine.
func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	slog.Info("session state changed", "from", c.state, "to", next)
	c.state = next
	if c.onState != nil {
		go c.onState(next)
	}
}

// Start begins (or restarts) a session. With no live connection the
// parameters are stashed and a connection is opened; once it reaches
// Connected the stashed parameters are sent immediately. With a connection
// already open the start message is sent directly.
func (c *Controller) Start(ctx context.Context, params StartParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnected, StateActive:
		c.sendStartLocked(params)
		return nil
	case StateConnecting:
		c.pending = &params
		return nil
	default:
		c.pending = &params
		c.setStateLocked(StateConnecting)
		go c.connect(ctx)
		return nil
	}
}

// sendStartLocked sends start_session and optimistically advances to Active.
func (c *Controller) sendStartLocked(params StartParams) {
	c.style = params.Style
	c.group = params.Group
	c.turn = 0
	c.link.trySend(startSessionMsg{Type: "start_session", StartParams: params})
	c.setStateLocked(StateActive)
}

// connect dials the interview service and starts the link goroutines.
func (c *Controller) connect(ctx context.Context) {
	conn, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		slog.Error("session connect failed", "url", c.url, "error", err)
		c.setStateLocked(StateError)
		c.mu.Unlock()
		return
	}

	l := newLink(conn)
	c.link = l
	c.setStateLocked(StateConnected)

	go l.runWriter()
	go c.runReader(l)
	go c.runKeepalive(l)

	if c.pending != nil {
		params := *c.pending
		c.pending = nil
		c.sendStartLocked(params)
	}
	c.mu.Unlock()
}

// runReader consumes inbound messages until the connection fails or closes.
func (c *Controller) runReader(l *link) {
	for {
		var msg ServerMessage
		if err := l.conn.ReadJSON(&msg); err != nil {
			c.readerStopped(l, err)
			return
		}
		c.handle(msg)
	}
}

// readerStopped maps a terminated read loop onto a terminal state, unless
// the controller already left this link behind.
func (c *Controller) readerStopped(l *link, err error) {
	l.shutdown()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l {
		return
	}
	switch c.state {
	case StateConnecting, StateConnected, StateActive:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			slog.Info("session connection closed")
			c.setStateLocked(StateClosed)
		} else {
			slog.Error("session connection error", "error", err)
			c.setStateLocked(StateError)
		}
	}
}

// runKeepalive sends periodic pings while the link is alive.
func (c *Controller) runKeepalive(l *link) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.trySend(pingMsg{Type: "ping"})
		}
	}
}

// handle dispatches one inbound protocol message.
func (c *Controller) handle(msg ServerMessage) {
	switch msg.Type {
	case msgSessionReady:
		c.mu.Lock()
		c.sessionID = msg.SessionID
		c.mu.Unlock()

	case msgSessionStarted:
		c.mu.Lock()
		c.sessionID = msg.SessionID
		c.style = msg.Style
		if msg.Group != "" {
			c.group = msg.Group
		}
		c.turn = msg.Turn
		c.setStateLocked(StateActive)
		c.mu.Unlock()

	case msgQuestion:
		c.handleCue(msg.Preface, msg.Question, msg.Turn, msg.Style)

	case msgClarification, msgInterviewerMsg:
		c.handleCue("", msg.Message, msg.Turn, msg.Style)

	case msgStyleSwitched:
		c.mu.Lock()
		c.style = msg.Style
		c.mu.Unlock()

	case msgTips:
		c.mu.Lock()
		c.tips = append(c.tips, TurnTips{Turn: msg.Turn, Items: msg.Items})
		c.mu.Unlock()

	case msgCheckinLogged, msgPong:
		// Acknowledgements carry no state.

	case msgSessionEnded:
		c.handleSessionEnded(msg)

	case msgError:
		slog.Warn("interview service reported an error", "message", msg.Message)

	default:
		slog.Warn("unknown protocol message", "type", msg.Type)
	}
}

// handleCue appends interviewer content to the transcript and speaks it,
// exactly once per distinct cue even if the service redelivers it.
func (c *Controller) handleCue(preface, text string, turn int, style types.Style) {
	if text == "" {
		return
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	key := preface + "\x00" + text
	if key == c.lastCueKey {
		c.mu.Unlock()
		return
	}
	c.lastCueKey = key
	c.turn = turn
	if style.Valid() {
		c.style = style
	}

	// Answer-to-question latency for this turn, if an answer started it.
	if t0, ok := c.latencyStart[turn]; ok {
		delete(c.latencyStart, turn)
		go c.SendTelemetry("latency", time.Since(t0), nil)
	}

	now := time.Now()
	if preface != "" {
		c.transcript = append(c.transcript, types.TranscriptEntry{
			Role: types.RoleInterviewer, Text: preface, Turn: turn, At: now,
		})
	}
	c.transcript = append(c.transcript, types.TranscriptEntry{
		Role: types.RoleInterviewer, Text: text, Turn: turn, At: now,
	})

	c.cueSeq++
	cue := speech.Cue{
		ID:         c.cueSeq,
		Text:       text,
		Preface:    preface,
		Style:      c.style,
		ListenMode: types.ModeAnswer,
	}
	speaker := c.speaker
	c.mu.Unlock()

	if speaker != nil {
		speaker.Speak(cue)
	}
}

// handleSessionEnded applies the terminal session_ended message. Stray
// messages arriving afterwards are ignored by the Active-state guards.
func (c *Controller) handleSessionEnded(msg ServerMessage) {
	c.mu.Lock()
	if msg.Message != "" {
		c.transcript = append(c.transcript, types.TranscriptEntry{
			Role: types.RoleInterviewer, Text: msg.Message, Turn: msg.Turn, At: time.Now(),
		})
	}
	if msg.Turn > 0 {
		c.turn = msg.Turn
	}
	slog.Info("session ended", "reason", msg.Reason, "turn", msg.Turn)
	c.setStateLocked(StateClosed)
	speaker := c.speaker
	c.mu.Unlock()

	if speaker != nil {
		speaker.CancelSpeech()
	}
}

// SendAnswer submits one answer with its delivery metrics. Blank text or a
// missing connection makes it a no-op.
func (c *Controller) SendAnswer(text string, metrics types.DeliveryMetrics) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil || c.state != StateActive {
		return
	}

	c.transcript = append(c.transcript, types.TranscriptEntry{
		Role: types.RoleUser, Text: trimmed, Turn: c.turn, At: time.Now(),
	})
	c.latencyStart[c.turn+1] = time.Now()
	c.link.trySend(userAnswerMsg{Type: "user_answer", Answer: trimmed, Metrics: metrics})
}

// SendClarification submits a clarifying question from the user. Blank text
// or a missing connection makes it a no-op.
func (c *Controller) SendClarification(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil || c.state != StateActive {
		return
	}

	c.transcript = append(c.transcript, types.TranscriptEntry{
		Role: types.RoleUser, Text: trimmed, Turn: c.turn, At: time.Now(),
	})
	c.link.trySend(userClarificationMsg{Type: "user_clarification", Question: trimmed})
}

// SwitchStyle requests a new interviewer style, updating the local style
// optimistically. Fire-and-forget.
func (c *Controller) SwitchStyle(style types.Style) {
	if !style.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return
	}
	c.style = style
	c.link.trySend(switchStyleMsg{Type: "switch_style", Style: style})
}

// SendCheckIn reports pre/post self-ratings. Fire-and-forget.
func (c *Controller) SendCheckIn(confidence, stress int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return
	}
	c.link.trySend(checkinMsg{Type: "checkin", Group: c.group, Confidence: confidence, Stress: stress})
}

// SendTelemetry reports one measurement event. Fire-and-forget.
func (c *Controller) SendTelemetry(event string, latency time.Duration, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return
	}
	msg := telemetryMsg{Type: "telemetry", Event: event, Data: data}
	if latency > 0 {
		msg.LatencyMs = float64(latency.Milliseconds())
	}
	c.link.trySend(msg)
}

// Stop closes the connection, clears all session-scoped state, and returns
// to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.link != nil {
		c.link.shutdown()
		c.link = nil
	}
	c.sessionID = ""
	c.turn = 0
	c.transcript = nil
	c.tips = nil
	c.pending = nil
	c.cueSeq = 0
	c.lastCueKey = ""
	c.latencyStart = make(map[int]time.Time)
	c.setStateLocked(StateIdle)
	speaker := c.speaker
	c.mu.Unlock()

	if speaker != nil {
		speaker.CancelSpeech()
		speaker.ResetCue()
	}
}
