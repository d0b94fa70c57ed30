package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/vocalhq/interview-trainer/internal/types"
)

const (
	// VADThreshold is the normalized RMS amplitude above which a sample is
	// classified as speech. Energy-gate VAD, not a statistical model.
	VADThreshold = 0.035

	// WindowSpan is the rolling window length for delivery metrics.
	WindowSpan = 8 * time.Second

	// maxSampleGap caps the duration attributed to a single sample so a
	// stalled capture stream cannot flood the window.
	maxSampleGap = 250 * time.Millisecond
)

// Aggregator maintains the rolling telemetry window and derives
// DeliveryMetrics on demand. It is safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	window *RollingWindow

	lastSampleAt  time.Time
	lastAmplitude float64
	talking       bool

	gazePct int

	// segmentSpeech accumulates voiced time since BeginSegment, used to
	// derive the transcript-based speaking rate after an answer.
	segmentSpeech time.Duration

	// measuredRate and fillerCount come from last-answer text analysis.
	// measuredRate 0 means the pause-based heuristic applies.
	measuredRate int
	fillerCount  int
}

// New returns an Aggregator with an empty window.
func New() *Aggregator {
	return &Aggregator{window: NewRollingWindow(WindowSpan)}
}

// Observe classifies one amplitude sample, advances the rolling window, and
// reports whether the sample was speech. amplitude is normalized RMS in [0,1].
func (a *Aggregator) Observe(now time.Time, amplitude float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	talking := amplitude > VADThreshold

	if !a.lastSampleAt.IsZero() {
		d := now.Sub(a.lastSampleAt)
		if d > maxSampleGap {
			d = maxSampleGap
		}
		if d > 0 {
			a.window.Push(talking, d)
			if talking {
				a.segmentSpeech += d
			}
		}
	}

	a.lastSampleAt = now
	a.lastAmplitude = amplitude
	a.talking = talking
	return talking
}

// ObserveGaze records one face-landmark result. offset is the horizontal
// distance of the face reference point from the frame midpoint, as a
// fraction of half the frame width.
func (a *Aggregator) ObserveGaze(offset float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gazePct = gazeCenterPct(offset)
}

// gazeCenterPct maps a horizontal offset to a 0-100 centering score.
func gazeCenterPct(offset float64) int {
	return int(math.Round((1 - math.Min(1, 2*math.Abs(offset))) * 100))
}

// Talking reports whether the most recent sample was classified as speech.
func (a *Aggregator) Talking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.talking
}

// BeginSegment resets per-segment accumulation. The speaking rate reverts to
// the pause-based heuristic until the next answer is transcribed.
func (a *Aggregator) BeginSegment() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segmentSpeech = 0
	a.measuredRate = 0
}

// SegmentSpeechSeconds returns the voiced time accumulated since BeginSegment.
func (a *Aggregator) SegmentSpeechSeconds() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.segmentSpeech.Seconds()
}

// SetAnswerAnalysis installs transcript-derived speaking rate and filler
// count, replacing the heuristic rate until the next segment begins.
func (a *Aggregator) SetAnswerAnalysis(rateWPM, fillers int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rateWPM > 0 {
		a.measuredRate = rateWPM
	}
	a.fillerCount = fillers
}

// Metrics derives the current DeliveryMetrics snapshot from the window and
// the last-answer analysis. The snapshot is replaced wholesale every call.
func (a *Aggregator) Metrics() types.DeliveryMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	pause := 1.0
	if total := a.window.Total(); total > 0 {
		pause = float64(total-a.window.Speech()) / float64(total)
	}
	pause = math.Min(1, math.Max(0, pause))

	rate := a.measuredRate
	if rate == 0 {
		rate = heuristicRate(pause)
	}

	return types.DeliveryMetrics{
		SpeakingRateWPM: rate,
		PauseRatio:      pause,
		GazeCenterPct:   a.gazePct,
		FillerCount:     a.fillerCount,
		SpeechSeconds:   a.segmentSpeech.Seconds(),
		Volume:          math.Min(1, math.Max(0, a.lastAmplitude)),
	}
}

// heuristicRate interpolates between 90 and 170 wpm from the fraction of the
// window spent speaking. A proxy, not a lexical rate; constants are tuned.
func heuristicRate(pauseRatio float64) int {
	return int(math.Round(90 + (1-pauseRatio)*80))
}

// Reset clears all window and per-segment state.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window.Reset()
	a.lastSampleAt = time.Time{}
	a.lastAmplitude = 0
	a.talking = false
	a.gazePct = 0
	a.segmentSpeech = 0
	a.measuredRate = 0
	a.fillerCount = 0
}
