package videopacer

import (
	"github.com/Honorable-Knights-of-the-Roundtable/livepreview/pkg/frame"
)

// Hint tells a Sink how to treat a frame relative to its own pacing.
type Hint int

const (
	// Present at the sink's normal cadence.
	HintNone Hint = iota

	// The frame missed its target deadline: bypass the sink's own pacing
	// and show it as soon as possible to catch up.
	HintDisplayImmediately

	// The frame is past its expiry deadline: do not paint it, but still
	// accept it so delivery bookkeeping stays monotonic.
	HintDoNotDisplay
)

func (h Hint) String() string {
	switch h {
	case HintNone:
		return "none"
	case HintDisplayImmediately:
		return "display immediately"
	case HintDoNotDisplay:
		return "do not display"
	default:
		return "unknown"
	}
}

// Sink is the video presentation surface, e.g. the OS compositor layer.
//
// The pacer only ever calls a Sink from the refresh tick (and from Flush),
// never while holding its slot lock, so a Sink may take its time.
type Sink interface {
	// Report whether the sink can accept a frame right now.
	// A busy or failed sink returns false.
	IsReady() bool

	// Take ownership of f. The pacer does not touch f after this call.
	// A returned error is treated as an opaque platform device error.
	Accept(f frame.Frame, hint Hint) error

	// Discard any image the sink is holding for display, so a stale frame is
	// not left on screen.
	FlushPending()
}
