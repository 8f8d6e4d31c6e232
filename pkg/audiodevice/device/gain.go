package device

import (
	"math"
	"sync/atomic"

	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

// gain is an output volume in [0, 1] that may be changed while audio is
// being rendered.
type gain struct {
	bits atomic.Uint32
}

func (g *gain) set(volume float32) {
	if volume < 0.0 || math.IsNaN(float64(volume)) {
		volume = 0.0
	}
	if volume > 1.0 {
		volume = 1.0
	}
	g.bits.Store(math.Float32bits(volume))
}

func (g *gain) get() float32 {
	return math.Float32frombits(g.bits.Load())
}

// apply scales samples in place.
func (g *gain) apply(samples frame.PCMFrame) {
	volume := g.get()
	if volume == 1.0 {
		return
	}
	for i := range samples {
		samples[i] *= volume
	}
}
