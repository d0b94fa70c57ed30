package speech

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/vocalhq/interview-trainer/internal/types"
)

// Utterance is one best-effort local speech request.
type Utterance struct {
	Text  string
	Rate  float64 // multiplier, 1.0 = default
	Pitch float64 // multiplier, 1.0 = default
}

// LocalSynthesizer is the best-effort local fallback used when remote
// synthesis fails. Implementations should degrade silently.
type LocalSynthesizer interface {
	Speak(ctx context.Context, u Utterance) error
}

// Player plays synthesized audio bytes to completion.
type Player interface {
	Play(ctx context.Context, audio []byte, contentType string) error
}

// styleDelivery maps an interviewer style to fallback rate/pitch shading:
// supportive is faster and higher, cold slower and lower.
func styleDelivery(style types.Style) (rate, pitch float64) {
	switch style {
	case types.StyleSupportive:
		return 1.06, 1.1
	case types.StyleCold:
		return 0.94, 0.9
	default:
		return 1.0, 1.0
	}
}

// espeakBaseRate is espeak's default words-per-minute rate.
const espeakBaseRate = 175

// ESpeakSynthesizer shells out to espeak for local fallback speech.
type ESpeakSynthesizer struct {
	// Command overrides the espeak binary path. Empty uses PATH lookup.
	Command string
}

// Speak synthesizes u locally, blocking until playback completes.
func (s *ESpeakSynthesizer) Speak(ctx context.Context, u Utterance) error {
	command := s.Command
	if command == "" {
		command = "espeak"
	}
	rate := int(espeakBaseRate * u.Rate)
	pitch := int(50 * u.Pitch) // espeak pitch range is 0-99, 50 default
	if pitch > 99 {
		pitch = 99
	}
	cmd := exec.CommandContext(ctx, command,
		"-s", strconv.Itoa(rate),
		"-p", strconv.Itoa(pitch),
		u.Text,
	)
	return cmd.Run()
}

// ExecPlayer pipes audio bytes to an external player command (paplay by
// default, which accepts WAV on stdin).
type ExecPlayer struct {
	// Command overrides the player binary path. Empty uses "paplay".
	Command string
}

// Play writes audio to the player's stdin and waits for playback to finish.
func (p *ExecPlayer) Play(ctx context.Context, audio []byte, _ string) error {
	command := p.Command
	if command == "" {
		command = "paplay"
	}
	cmd := exec.CommandContext(ctx, command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	_, writeErr := stdin.Write(audio)
	closeErr := stdin.Close()
	if err := cmd.Wait(); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
