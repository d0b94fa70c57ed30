package capture

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmOf builds an S16LE mono chunk from sample values.
func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestRMSAmplitude(t *testing.T) {
	assert.Zero(t, RMSAmplitude(nil))
	assert.Zero(t, RMSAmplitude(pcmOf(0, 0, 0, 0)))

	// Constant half-scale signal has RMS of exactly 0.5.
	half := pcmOf(16384, -16384, 16384, -16384)
	assert.InDelta(t, 0.5, RMSAmplitude(half), 0.0001)

	// Quiet signal stays well under the voice threshold.
	quiet := pcmOf(100, -100, 100, -100)
	assert.Less(t, RMSAmplitude(quiet), 0.035)
}

func TestRMSAmplitudeIgnoresTrailingByte(t *testing.T) {
	full := pcmOf(16384, 16384)
	assert.InDelta(t, RMSAmplitude(full), RMSAmplitude(append(full, 0x7F)), 0.0001)
}

func TestWAVFromPCM(t *testing.T) {
	pcm := pcmOf(1, 2, 3, 4)
	wav := WAVFromPCM(pcm, 16000)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]), "mono")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	cases := []struct {
		err    string
		reason FailureReason
	}{
		{"Access denied by policy", ReasonPermissionDenied},
		{"no such entity", ReasonNoDevice},
		{"device or resource busy", ReasonDeviceBusy},
		{"invalid sample spec", ReasonUnsupportedFormat},
		{"auth cookie mismatch", ReasonInsecureContext},
		{"connection refused", ReasonUnavailable},
		{"something else entirely", ReasonUnknown},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.err))
		assert.Equal(t, tc.reason, got.Reason, tc.err)
		assert.NotEmpty(t, got.Advice())
	}
}

func TestClassifyPassesThroughClassifiedErrors(t *testing.T) {
	orig := &Error{Reason: ReasonDeviceBusy}
	assert.Same(t, orig, Classify(orig))

	wrapped := Classify(errors.New("wrapped: permission problem"))
	assert.Same(t, wrapped, Classify(wrapped))
}

func TestErrorAdviceFallsBackToUnknown(t *testing.T) {
	e := &Error{Reason: FailureReason("bogus")}
	assert.Equal(t, adviceByReason[ReasonUnknown], e.Advice())
}
