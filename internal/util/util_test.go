package util

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError("do thing", nil))

	base := errors.New("boom")
	wrapped := WrapError("open config", base)
	assert.EqualError(t, wrapped, "failed to open config: boom")
	assert.ErrorIs(t, wrapped, base)
}

func TestTruncateErrorBody(t *testing.T) {
	assert.Equal(t, "first line", TruncateErrorBody("  first line\nsecond line\n"))

	long := strings.Repeat("x", 250)
	got := TruncateErrorBody(long)
	assert.Len(t, got, 203)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45_000))
	assert.Equal(t, "2m 34s", FormatDuration(154_000))
	assert.Equal(t, "1h 23m", FormatDuration(4_980_000))
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)

	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 16*time.Second, b.Next())
	assert.Equal(t, 30*time.Second, b.Next())
	assert.Equal(t, 30*time.Second, b.Next())

	b.Reset()
	assert.Equal(t, 1*time.Second, b.Next())
}
