package capture

import (
	"math"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

const baseFreq = 440.0 // A4 note

// toneGenerator produces a slowly modulated sine wave with harmonics.
type toneGenerator struct {
	sampleRate float64
	channels   int
	phase      float64
	frameCount int64
}

// Fill samples (interleaved) with the next run of the tone. Every channel
// carries the same signal.
func (g *toneGenerator) fill(samples frame.PCMFrame) {
	// Slow frequency and amplitude modulation, updated once per fill
	currentFreq := baseFreq + math.Sin(float64(g.frameCount)*0.01)*50
	amplitude := 0.3 + 0.2*math.Sin(float64(g.frameCount)*0.005)

	for i := 0; i+g.channels <= len(samples); i += g.channels {
		sample := math.Sin(g.phase)

		// Add harmonics while they stay under the Nyquist frequency
		if currentFreq*2 < g.sampleRate/2 {
			sample += 0.3 * math.Sin(g.phase*2)
		}
		if currentFreq*3 < g.sampleRate/2 {
			sample += 0.1 * math.Sin(g.phase*3)
		}
		sample *= amplitude

		for c := range g.channels {
			samples[i+c] = float32(sample)
		}

		g.phase += 2 * math.Pi * currentFreq / g.sampleRate
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
	g.frameCount++
}
