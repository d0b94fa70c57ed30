package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalhq/interview-trainer/internal/speech"
	"github.com/vocalhq/interview-trainer/internal/types"
)

// fakeConn is an in-memory session transport.
type fakeConn struct {
	mu      sync.Mutex
	written []any
	inbound chan ServerMessage
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan ServerMessage, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			if err == nil {
				err = &websocket.CloseError{Code: websocket.CloseNormalClosure}
			}
			return err
		}
		*(v.(*ServerMessage)) = msg
		return nil
	case <-c.closed:
		return errors.New("use of closed network connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// finish ends the read loop with the given error (nil means a clean close).
func (c *fakeConn) finish(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	close(c.inbound)
}

func (c *fakeConn) sentMessages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.written))
	copy(out, c.written)
	return out
}

// fakeSpeaker records delivered cues.
type fakeSpeaker struct {
	mu       sync.Mutex
	cues     []speech.Cue
	canceled int
}

func (s *fakeSpeaker) Speak(cue speech.Cue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cues = append(s.cues, cue)
}

func (s *fakeSpeaker) CancelSpeech() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled++
}

func (s *fakeSpeaker) ResetCue() {}

func (s *fakeSpeaker) spoken() []speech.Cue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Cue, len(s.cues))
	copy(out, s.cues)
	return out
}

func validParams() StartParams {
	return StartParams{Style: types.StyleNeutral, Group: "treatment", Consent: true}
}

func newTestController(t *testing.T) (*Controller, *fakeConn, *fakeSpeaker) {
	t.Helper()
	conn := newFakeConn()
	speaker := &fakeSpeaker{}
	c := NewController("ws://test.invalid/ws", speaker,
		WithDialer(func(ctx context.Context, url string) (Conn, error) {
			return conn, nil
		}))
	return c, conn, speaker
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 5*time.Millisecond, "waiting for state %s", want)
}

func waitForSent(t *testing.T, conn *fakeConn, n int) []any {
	t.Helper()
	require.Eventually(t, func() bool { return len(conn.sentMessages()) >= n },
		2*time.Second, 5*time.Millisecond)
	return conn.sentMessages()
}

func TestStartValidatesParams(t *testing.T) {
	c, _, _ := newTestController(t)

	err := c.Start(context.Background(), StartParams{Style: "harsh", Group: "treatment"})
	require.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
}

func TestStartConnectsAndSendsStartSession(t *testing.T) {
	c, conn, _ := newTestController(t)

	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	sent := waitForSent(t, conn, 1)
	msg, ok := sent[0].(startSessionMsg)
	require.True(t, ok)
	assert.Equal(t, "start_session", msg.Type)
	assert.Equal(t, types.StyleNeutral, msg.Style)
}

func TestQuestionSpokenOnceAndTranscribed(t *testing.T) {
	c, conn, speaker := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	conn.inbound <- ServerMessage{Type: "session_started", SessionID: "s-1", Style: types.StyleNeutral, Turn: 1}
	conn.inbound <- ServerMessage{
		Type: "question", Turn: 1, Style: types.StyleNeutral,
		Preface: "Let's begin.", Question: "Tell me about yourself.",
	}

	require.Eventually(t, func() bool { return len(speaker.spoken()) == 1 },
		2*time.Second, 5*time.Millisecond)

	cue := speaker.spoken()[0]
	assert.Equal(t, "Tell me about yourself.", cue.Text)
	assert.Equal(t, "Let's begin.", cue.Preface)
	assert.Equal(t, types.ModeAnswer, cue.ListenMode)

	// A redelivered question is dropped entirely.
	conn.inbound <- ServerMessage{
		Type: "question", Turn: 1, Style: types.StyleNeutral,
		Preface: "Let's begin.", Question: "Tell me about yourself.",
	}
	conn.inbound <- ServerMessage{Type: "pong"}
	require.Eventually(t, func() bool { return c.SessionID() == "s-1" },
		2*time.Second, 5*time.Millisecond)

	assert.Len(t, speaker.spoken(), 1)

	// Preface and question both land in the transcript.
	entries := c.Transcript()
	require.Len(t, entries, 2)
	assert.Equal(t, types.RoleInterviewer, entries[0].Role)
	assert.Equal(t, "Let's begin.", entries[0].Text)
	assert.Equal(t, "Tell me about yourself.", entries[1].Text)
	assert.Equal(t, 1, c.Turn())
}

func TestSendAnswerIgnoresBlankText(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)
	waitForSent(t, conn, 1)

	c.SendAnswer("   \n\t ", types.DeliveryMetrics{})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, conn.sentMessages(), 1, "only start_session on the wire")
	assert.Empty(t, c.Transcript())
}

func TestSendAnswerCarriesMetricsAndTranscript(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	metrics := types.DeliveryMetrics{SpeakingRateWPM: 130, PauseRatio: 0.3, FillerCount: 2}
	c.SendAnswer("  I led the migration project.  ", metrics)

	sent := waitForSent(t, conn, 2)
	msg, ok := sent[1].(userAnswerMsg)
	require.True(t, ok)
	assert.Equal(t, "user_answer", msg.Type)
	assert.Equal(t, "I led the migration project.", msg.Answer)
	assert.Equal(t, metrics, msg.Metrics)

	entries := c.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, types.RoleUser, entries[0].Role)
	assert.Equal(t, "I led the migration project.", entries[0].Text)
}

func TestSendAnswerRequiresActiveSession(t *testing.T) {
	c, conn, _ := newTestController(t)

	c.SendAnswer("hello", types.DeliveryMetrics{})
	assert.Empty(t, conn.sentMessages())
	assert.Empty(t, c.Transcript())
}

func TestStyleSwitchIsOptimistic(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	c.SwitchStyle(types.StyleCold)
	assert.Equal(t, types.StyleCold, c.Style())

	sent := waitForSent(t, conn, 2)
	msg, ok := sent[1].(switchStyleMsg)
	require.True(t, ok)
	assert.Equal(t, types.StyleCold, msg.Style)

	c.SwitchStyle(types.Style("harsh"))
	assert.Equal(t, types.StyleCold, c.Style())
}

func TestTipsAccumulate(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	conn.inbound <- ServerMessage{Type: "tips", Turn: 1, Items: []types.Tip{
		{Summary: "Structure", Detail: "Use a clear beginning and end."},
	}}

	require.Eventually(t, func() bool { return len(c.Tips()) == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Tips()[0].Turn)
	assert.Equal(t, "Structure", c.Tips()[0].Items[0].Summary)
}

func TestSessionEndedIsTerminal(t *testing.T) {
	c, conn, speaker := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	conn.inbound <- ServerMessage{
		Type: "session_ended", Reason: "complete", Turn: 5,
		Message: "Great work today.",
	}
	waitForState(t, c, StateClosed)

	require.Eventually(t, func() bool {
		speaker.mu.Lock()
		defer speaker.mu.Unlock()
		return speaker.canceled > 0
	}, 2*time.Second, 5*time.Millisecond)

	// A stray question after the end is ignored.
	conn.inbound <- ServerMessage{Type: "question", Turn: 6, Question: "One more?"}
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, speaker.spoken())
	assert.Equal(t, StateClosed, c.State())

	entries := c.Transcript()
	require.Len(t, entries, 1)
	assert.Equal(t, "Great work today.", entries[0].Text)
}

func TestCleanCloseEntersClosed(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	conn.finish(nil)
	waitForState(t, c, StateClosed)
}

func TestConnectionErrorEntersError(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	conn.finish(errors.New("read tcp: connection reset"))
	waitForState(t, c, StateError)
}

func TestDialFailureEntersError(t *testing.T) {
	c := NewController("ws://test.invalid/ws", &fakeSpeaker{},
		WithDialer(func(ctx context.Context, url string) (Conn, error) {
			return nil, errors.New("dial refused")
		}))

	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateError)
}

func TestStopClearsSessionState(t *testing.T) {
	c, conn, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	conn.inbound <- ServerMessage{Type: "session_started", SessionID: "s-9", Turn: 1}
	conn.inbound <- ServerMessage{Type: "question", Turn: 1, Question: "First?"}
	require.Eventually(t, func() bool { return len(c.Transcript()) > 0 },
		2*time.Second, 5*time.Millisecond)

	c.Stop()

	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.SessionID())
	assert.Empty(t, c.Transcript())
	assert.Empty(t, c.Tips())
	assert.Zero(t, c.Turn())
}

func TestRestartAfterErrorReconnects(t *testing.T) {
	conns := make(chan *fakeConn, 2)
	first := newFakeConn()
	second := newFakeConn()
	conns <- first
	conns <- second

	c := NewController("ws://test.invalid/ws", &fakeSpeaker{},
		WithDialer(func(ctx context.Context, url string) (Conn, error) {
			return <-conns, nil
		}))

	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)
	first.finish(errors.New("boom"))
	waitForState(t, c, StateError)

	require.NoError(t, c.Start(context.Background(), validParams()))
	waitForState(t, c, StateActive)

	sent := waitForSent(t, second, 1)
	_, ok := sent[0].(startSessionMsg)
	assert.True(t, ok)
}
