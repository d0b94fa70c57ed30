package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRollingWindowEvictsOldest(t *testing.T) {
	w := NewRollingWindow(8 * time.Second)

	for range 5 {
		w.Push(true, 2*time.Second)
	}

	// 10s pushed, but dropping the oldest 2s entry still leaves a full 8s.
	assert.Equal(t, 8*time.Second, w.Total())
	assert.Equal(t, 8*time.Second, w.Speech())
	assert.Equal(t, 4, w.Len())
}

func TestRollingWindowTotalNeverExceedsSpanPlusOneSample(t *testing.T) {
	w := NewRollingWindow(8 * time.Second)

	for range 200 {
		w.Push(false, 150*time.Millisecond)
	}

	assert.LessOrEqual(t, w.Total(), 8*time.Second+150*time.Millisecond)
	assert.Zero(t, w.Speech())
}

func TestRollingWindowSpeechAccounting(t *testing.T) {
	w := NewRollingWindow(8 * time.Second)

	w.Push(true, 3*time.Second)
	w.Push(false, 2*time.Second)
	w.Push(true, 1*time.Second)

	assert.Equal(t, 6*time.Second, w.Total())
	assert.Equal(t, 4*time.Second, w.Speech())
}

func TestRollingWindowIgnoresNonPositiveDurations(t *testing.T) {
	w := NewRollingWindow(8 * time.Second)

	w.Push(true, 0)
	w.Push(true, -time.Second)

	assert.Zero(t, w.Total())
	assert.Zero(t, w.Len())
}

func TestRollingWindowReset(t *testing.T) {
	w := NewRollingWindow(8 * time.Second)
	w.Push(true, time.Second)

	w.Reset()

	assert.Zero(t, w.Total())
	assert.Zero(t, w.Speech())
	assert.Zero(t, w.Len())
}
