// Package capture abstracts microphone acquisition behind a small Source
// interface so the segmentation engine can run against PulseAudio in
// production and against in-memory fakes in tests.
package capture

import (
	"context"
	"time"
)

// ChunkFunc receives one PCM chunk (S16LE mono) with its capture timestamp.
type ChunkFunc func(at time.Time, pcm []byte)

// Source is an audio-only capture source delivering a continuous PCM stream.
// Start may be called once per Source; Stop is idempotent.
type Source interface {
	Start(ctx context.Context, fn ChunkFunc) error
	Stop() error
}

// Device represents an available audio input device.
type Device struct {
	// ID is the device identifier.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}
