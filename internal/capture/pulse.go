package capture

import (
	"context"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// captureSampleRate is the mono capture rate expected by the speech
	// recognition service.
	captureSampleRate = 16000

	// chunkSizeBytes is 20ms at 16kHz mono s16.
	chunkSizeBytes = 640

	appName = "interview-trainer"
)

// writerFunc adapts a chunk callback to the io.Writer shape pulse expects.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// PulseSource captures S16LE mono PCM from a PulseAudio input source.
// It is safe for concurrent use.
type PulseSource struct {
	device string // source identifier, empty for the server default

	mu      sync.Mutex
	client  *pulse.Client
	stream  *pulse.RecordStream
	started bool
	stopped bool
}

// NewPulseSource returns a Source reading from the named PulseAudio input,
// or the server default when device is empty.
func NewPulseSource(device string) *PulseSource {
	return &PulseSource{device: device}
}

// Start connects to the Pulse server and begins streaming chunks to fn.
// Failures are returned as classified capture errors.
func (s *PulseSource) Start(ctx context.Context, fn ChunkFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return &Error{Reason: ReasonDeviceBusy}
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return Classify(err)
	}

	var source *pulse.Source
	if s.device == "" {
		source, err = client.DefaultSource()
	} else {
		source, err = client.SourceByID(s.device)
	}
	if err != nil {
		client.Close()
		return Classify(err)
	}

	writer := pulse.NewWriter(writerFunc(func(p []byte) (int, error) {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		fn(time.Now(), chunk)
		return len(p), nil
	}), pulseproto.FormatInt16LE)

	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(captureSampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName(appName),
	)
	if err != nil {
		client.Close()
		return Classify(err)
	}

	s.client = client
	s.stream = stream
	s.started = true
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	return nil
}

// Stop halts the stream and releases the Pulse connection. Idempotent.
func (s *PulseSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || !s.started {
		s.stopped = true
		return nil
	}
	s.stopped = true

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

// ListDevices returns available PulseAudio input sources.
func ListDevices() ([]Device, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		return nil, Classify(err)
	}
	defer client.Close()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, Classify(err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{ID: info.SourceName, Name: info.Device})
	}
	return devices, nil
}
