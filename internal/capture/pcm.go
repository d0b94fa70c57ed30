package capture

import (
	"encoding/binary"
	"math"
)

// maxSampleValue is the maximum absolute value for 16-bit signed audio.
const maxSampleValue = 32768.0

// RMSAmplitude computes the normalized RMS amplitude of an S16LE mono PCM
// chunk on a [0,1] scale.
func RMSAmplitude(pcm []byte) float64 {
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sumSquares += s * s
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSquares/float64(count)) / maxSampleValue
}
