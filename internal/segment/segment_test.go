package segment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalhq/interview-trainer/internal/capture"
	"github.com/vocalhq/interview-trainer/internal/types"
)

// fakeSource is an in-memory capture source.
type fakeSource struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (f *fakeSource) Start(ctx context.Context, fn capture.ChunkFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSource) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// testClock drives the engine clock and captures the auto-stop callback
// instead of scheduling real timers.
type testClock struct {
	mu   sync.Mutex
	now  time.Time
	fire func()
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) AfterFunc(d time.Duration, f func()) *time.Timer {
	c.mu.Lock()
	c.fire = f
	c.mu.Unlock()
	return time.NewTimer(time.Hour)
}

// Fire invokes the most recently armed auto-stop callback.
func (c *testClock) Fire() {
	c.mu.Lock()
	f := c.fire
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

type finalized struct {
	mode  types.RecordingMode
	audio []byte
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock, *[]finalized) {
	t.Helper()
	clock := newTestClock()
	var (
		mu   sync.Mutex
		outs []finalized
	)
	onFinalized := func(mode types.RecordingMode, audio []byte, _ time.Time) {
		mu.Lock()
		outs = append(outs, finalized{mode: mode, audio: audio})
		mu.Unlock()
	}
	classify := func(_ time.Time, _ []byte) bool { return true }

	opts = append(opts, WithClock(clock.Now, clock.AfterFunc))
	return New(classify, onFinalized, opts...), clock, &outs
}

func TestStartFailsWhileRecording(t *testing.T) {
	e, _, _ := newTestEngine(t, WithSharedSource(&fakeSource{}))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	assert.ErrorIs(t, e.Start(context.Background(), types.ModeAnswer), ErrAlreadyRecording)
}

func TestStartFailsWhileTranscriptionPending(t *testing.T) {
	e, _, _ := newTestEngine(t, WithSharedSource(&fakeSource{}))

	e.SetTranscribePending(true)
	assert.ErrorIs(t, e.Start(context.Background(), types.ModeAnswer), ErrAlreadyRecording)

	e.SetTranscribePending(false)
	assert.NoError(t, e.Start(context.Background(), types.ModeAnswer))
}

func TestStartWithoutAnySourceFails(t *testing.T) {
	e, _, _ := newTestEngine(t)

	err := e.Start(context.Background(), types.ModeAnswer)
	var cerr *capture.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, capture.ReasonUnavailable, cerr.Reason)
	assert.NotEmpty(t, e.LastError())
}

func TestAutoStopAfterSilenceTimeout(t *testing.T) {
	e, clock, outs := newTestEngine(t, WithSharedSource(&fakeSource{}))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	e.OnSample(clock.Now(), true, []byte{1, 2, 3, 4})

	// Beyond both the minimum age and the silence budget.
	clock.Advance(SilenceTimeout + 50*time.Millisecond)
	clock.Fire()

	require.Len(t, *outs, 1)
	assert.Equal(t, types.ModeAnswer, (*outs)[0].mode)
	assert.Equal(t, []byte{1, 2, 3, 4}, (*outs)[0].audio)

	_, _, recording := e.Recording()
	assert.False(t, recording)
}

func TestAutoStopRespectsMinimumAge(t *testing.T) {
	e, clock, outs := newTestEngine(t, WithSharedSource(&fakeSource{}))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	e.OnSample(clock.Now(), true, []byte{1})

	// Timer fires early: segment too young, nothing finalized.
	clock.Advance(500 * time.Millisecond)
	clock.Fire()

	assert.Empty(t, *outs)
	_, _, recording := e.Recording()
	assert.True(t, recording)
}

func TestAutoStopReArmsWhileVoiceContinues(t *testing.T) {
	e, clock, outs := newTestEngine(t, WithSharedSource(&fakeSource{}))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))

	// Voice keeps refreshing the silence budget past the minimum age.
	for range 10 {
		clock.Advance(500 * time.Millisecond)
		e.OnSample(clock.Now(), true, []byte{1})
	}
	clock.Fire()
	assert.Empty(t, *outs)

	clock.Advance(SilenceTimeout)
	clock.Fire()
	assert.Len(t, *outs, 1)
}

func TestStopIsIdempotentAndSkipsEmptySegments(t *testing.T) {
	e, _, outs := newTestEngine(t, WithSharedSource(&fakeSource{}))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	e.Stop()
	e.Stop()

	// No audio captured, so nothing was finalized.
	assert.Empty(t, *outs)
}

func TestDiscardDropsCapturedAudio(t *testing.T) {
	e, clock, outs := newTestEngine(t, WithSharedSource(&fakeSource{}))

	require.NoError(t, e.Start(context.Background(), types.ModeClarification))
	e.OnSample(clock.Now(), true, []byte{9, 9})
	e.Discard()

	assert.Empty(t, *outs)
}

func TestOwnedSourceReleasedOnStop(t *testing.T) {
	owned := &fakeSource{}
	e, clock, outs := newTestEngine(t, WithSourceFactory(func() capture.Source { return owned }))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	e.OnSample(clock.Now(), true, []byte{5})
	e.Stop()

	assert.True(t, owned.wasStopped())
	assert.Len(t, *outs, 1)
}

func TestSharedSourceNotStoppedByEngine(t *testing.T) {
	shared := &fakeSource{}
	e, clock, _ := newTestEngine(t, WithSharedSource(shared))

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	e.OnSample(clock.Now(), true, []byte{5})
	e.Stop()

	assert.False(t, shared.wasStopped())
}

func TestOnSampleIgnoredWhileIdle(t *testing.T) {
	e, clock, outs := newTestEngine(t, WithSharedSource(&fakeSource{}))

	e.OnSample(clock.Now(), true, []byte{1, 2, 3})
	e.Stop()

	assert.Empty(t, *outs)
}

func TestStartHookRuns(t *testing.T) {
	ran := false
	e, _, _ := newTestEngine(t,
		WithSharedSource(&fakeSource{}),
		WithStartHook(func() { ran = true }),
	)

	require.NoError(t, e.Start(context.Background(), types.ModeAnswer))
	assert.True(t, ran)
}
